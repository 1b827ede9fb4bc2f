package store

import "github.com/OFFIS-RIT/tagrel/pkg/common"

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// UnionIDs returns a followed by the ids of b not already in a.
func UnionIDs(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, list := range [][]int64{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// ContainsAllIDs reports whether every id of sub is in set.
func ContainsAllIDs(set, sub []int64) bool {
	lookup := make(map[int64]struct{}, len(set))
	for _, id := range set {
		lookup[id] = struct{}{}
	}
	for _, id := range sub {
		if _, ok := lookup[id]; !ok {
			return false
		}
	}
	return true
}

// Matches reports whether r satisfies the filter.
func (f RelationshipFilter) Matches(r *common.Relationship) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Antecedent != "" && r.Antecedent != f.Antecedent {
		return false
	}
	if f.Consequent != "" && r.Consequent != f.Consequent {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if r.Status == st {
			return true
		}
	}
	return false
}
