// Package syncmerge reconciles a local snapshot with its remote counterpart.
//
// Each field of a snapshot is merged by a named combinator. Every combinator
// is idempotent (merging the result with either input again changes
// nothing) and deterministic, with ties broken in favour of the local side.
package syncmerge

import (
	"sort"
	"time"
)

// UnionSet returns the sorted union of two string sets, dropping empty values.
func UnionSet(local, remote []string) []string {
	seen := make(map[string]struct{}, len(local)+len(remote))
	out := make([]string, 0, len(local)+len(remote))
	for _, values := range [][]string{local, remote} {
		for _, v := range values {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// MaxScalar returns the greater of two integers.
func MaxScalar(local, remote int) int {
	if remote > local {
		return remote
	}
	return local
}

// LatestDate returns the chronologically later "YYYY-MM-DD" date. An empty
// string stands for no date and loses against any date.
func LatestDate(local, remote string) string {
	if remote > local {
		return remote
	}
	return local
}

// MostRecentWins returns the local value unless the remote one was updated
// strictly later.
func MostRecentWins[T any](local T, localAt time.Time, remote T, remoteAt time.Time) T {
	if remoteAt.After(localAt) {
		return remote
	}
	return local
}

// UnionBy merges two keyed collections. Keys present on one side are copied;
// for keys present on both, resolve picks the winner.
func UnionBy[K comparable, V any](local, remote map[K]V, resolve func(local, remote V) V) map[K]V {
	out := make(map[K]V, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, r := range remote {
		if l, ok := out[k]; ok {
			out[k] = resolve(l, r)
			continue
		}
		out[k] = r
	}
	return out
}
