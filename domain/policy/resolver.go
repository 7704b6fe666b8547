// Package policy implements the longest-prefix-match bucket resolver shared
// by every policy family. The algorithm is identical across
// families; only the value shape differs, so the resolver is generic.
package policy

import (
	"sort"
	"strings"

	"github.com/clusterkeeper/ilm/domain/model"
)

// Resolve returns the bucket name within record whose key is the longest
// prefix of index, excluding the reserved "global" bucket from the
// candidate search. Ties in length are broken by natural (lexical) order
// of the candidate set, which is stable because the candidates are sorted
// by (length desc, name asc) before the scan.
func Resolve[T any](record map[string]T, index string) string {
	candidates := make([]string, 0, len(record))
	for key := range record {
		if key == model.ReservedBucket {
			continue
		}
		candidates = append(candidates, key)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})

	for _, key := range candidates {
		if strings.HasPrefix(index, key) {
			return key
		}
	}
	return model.ReservedBucket
}

// ResolveValue resolves the bucket name and returns its value. When the
// resolved bucket is absent from the record (no prefix match and no global
// bucket), the family-specific defaultValue is substituted.
func ResolveValue[T any](record map[string]T, index string, defaultValue T) (string, T) {
	bucket := Resolve(record, index)
	if v, ok := record[bucket]; ok {
		return bucket, v
	}
	return bucket, defaultValue
}
