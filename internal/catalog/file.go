package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"MarketShard/internal/model"
)

// SeedFile is the YAML layout shared by the file catalog and the seeder.
type SeedFile struct {
	Profiles []model.SymbolProfile `yaml:"profiles"`
}

// ReadSeedFile parses a profiles YAML file.
func ReadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	return &f, nil
}

// FileCatalog serves profiles from a YAML file loaded once.
type FileCatalog struct {
	profiles []model.SymbolProfile
}

// NewFileCatalog loads path.
func NewFileCatalog(path string) (*FileCatalog, error) {
	f, err := ReadSeedFile(path)
	if err != nil {
		return nil, err
	}
	return &FileCatalog{profiles: f.Profiles}, nil
}

func (c *FileCatalog) Page(_ context.Context, offset, limit int) ([]model.SymbolProfile, error) {
	if offset >= len(c.profiles) {
		return nil, nil
	}
	end := min(offset+limit, len(c.profiles))
	return c.profiles[offset:end], nil
}
