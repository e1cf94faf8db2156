// Package artifact publishes the JSON cache files read by chart clients.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes one named JSON artifact. Writes replace the previous content.
type Store interface {
	Put(ctx context.Context, name string, v any) error
}

// DirStore writes artifacts as <Dir>/<name>.json.
type DirStore struct {
	Dir string
}

// NewDirStore creates dir if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DirStore{Dir: dir}, nil
}

// Put writes to a temp file in the same directory and renames it into place,
// so readers never see a half-written file.
func (s *DirStore) Put(_ context.Context, name string, v any) error {
	if err := validName(name); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Path returns the file an artifact is written to.
func (s *DirStore) Path(name string) string {
	return filepath.Join(s.Dir, name+".json")
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}

// MultiStore writes every artifact to all stores and joins their errors.
type MultiStore []Store

func (m MultiStore) Put(ctx context.Context, name string, v any) error {
	var errs []error
	for _, s := range m {
		if err := s.Put(ctx, name, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
