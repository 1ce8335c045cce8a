package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes the deterministic cache key for one upstream call:
// the source, the normalized query string, and the connector parameters in
// sorted order. Identical inputs always hash identically.
func Fingerprint(source, normalizedQuery string, params map[string]string) string {
	var sb strings.Builder
	sb.WriteString(source)
	sb.WriteByte('\n')
	sb.WriteString(strings.ToLower(strings.TrimSpace(normalizedQuery)))
	sb.WriteByte('\n')

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
		sb.WriteByte(';')
	}

	return fmt.Sprintf("%s:%016x", source, xxhash.Sum64String(sb.String()))
}

// ContentHash is the stable hash over raw result bytes. A pure function of
// its input.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}
