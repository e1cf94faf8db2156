// Package shard splits chart payloads into per-letter history buckets so a
// client only downloads the bucket holding the symbol it looks at.
package shard

import (
	"strings"
	"unicode/utf8"

	"MarketShard/internal/model"
)

const (
	bucketPrefix = "history_"
	// OtherBucket holds symbols that do not start with an ASCII letter.
	OtherBucket = bucketPrefix + "other"
)

// BucketName returns the shard a symbol belongs to.
func BucketName(symbol string) string {
	r, _ := utf8.DecodeRuneInString(symbol)
	switch {
	case r >= 'a' && r <= 'z':
		return bucketPrefix + strings.ToUpper(string(r))
	case r >= 'A' && r <= 'Z':
		return bucketPrefix + string(r)
	default:
		return OtherBucket
	}
}

// Shard partitions payloads by bucket. Every symbol lands in exactly one
// bucket and no bucket is empty.
func Shard(payloads map[string]model.ChartPayload) map[string]map[string]model.ChartPayload {
	out := make(map[string]map[string]model.ChartPayload)
	for symbol, p := range payloads {
		name := BucketName(symbol)
		bucket, ok := out[name]
		if !ok {
			bucket = make(map[string]model.ChartPayload)
			out[name] = bucket
		}
		bucket[symbol] = p
	}
	return out
}
