package store

import (
	"errors"
	"slices"
	"testing"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
)

func TestChunkRange(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      [][2]int
	}{
		{name: "empty", total: 0, chunkSize: 2, want: nil},
		{name: "even", total: 4, chunkSize: 2, want: [][2]int{{0, 2}, {2, 4}}},
		{name: "remainder", total: 5, chunkSize: 2, want: [][2]int{{0, 2}, {2, 4}, {4, 5}}},
		{name: "zero chunk", total: 3, chunkSize: 0, want: [][2]int{{0, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][2]int
			err := ChunkRange(tt.total, tt.chunkSize, func(start, end int) error {
				got = append(got, [2]int{start, end})
				return nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunkRangeStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 3, func(start, end int) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected first chunk error, got %v after %d calls", err, calls)
	}
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"b", "", "a", "b", "a"})
	if !slices.Equal(got, []string{"b", "a"}) {
		t.Fatalf("unexpected result %v", got)
	}
	if DedupeStrings(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestIDSets(t *testing.T) {
	union := UnionIDs([]int64{3, 1}, []int64{1, 2, 3, 4})
	if !slices.Equal(union, []int64{3, 1, 2, 4}) {
		t.Fatalf("unexpected union %v", union)
	}
	if !ContainsAllIDs(union, []int64{4, 1}) {
		t.Fatal("expected union to cover subset")
	}
	if ContainsAllIDs([]int64{1}, []int64{1, 5}) {
		t.Fatal("expected missing id to fail")
	}
	if !ContainsAllIDs(nil, nil) {
		t.Fatal("empty subset is always covered")
	}
}

func TestRelationshipFilterMatches(t *testing.T) {
	r := &common.Relationship{Kind: common.KindAlias, Antecedent: "a", Consequent: "b", Status: common.StatusActive}

	tests := []struct {
		name   string
		filter RelationshipFilter
		want   bool
	}{
		{name: "empty", filter: RelationshipFilter{}, want: true},
		{name: "kind", filter: RelationshipFilter{Kind: common.KindImplication}, want: false},
		{name: "antecedent", filter: RelationshipFilter{Antecedent: "a"}, want: true},
		{name: "consequent mismatch", filter: RelationshipFilter{Consequent: "c"}, want: false},
		{name: "status listed", filter: RelationshipFilter{Statuses: []common.Status{common.StatusQueued, common.StatusActive}}, want: true},
		{name: "status missing", filter: RelationshipFilter{Statuses: []common.Status{common.StatusPending}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(r); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
