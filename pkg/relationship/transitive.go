package relationship

import (
	"context"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
)

// TransitiveChecker finds the other live relationships that share the
// candidate's antecedent. For alias candidates every edge carries the
// endpoints it will have once chains through the antecedent are absorbed.
type TransitiveChecker struct {
	rels Reader
}

func NewTransitiveChecker(rels Reader) *TransitiveChecker {
	return &TransitiveChecker{rels: rels}
}

type edgeRule struct {
	kind     common.Kind
	byAnte   bool
	describe func(r, o *common.Relationship) (ante, cons, chain string)
}

var edgeRules = []edgeRule{
	// x -> A -> C: chained alias, absorbed onto C.
	{common.KindAlias, false, func(r, o *common.Relationship) (string, string, string) {
		return o.Antecedent, r.Consequent, fmt.Sprintf("[[%s]] -> [[%s]] -> [[%s]]", o.Antecedent, r.Antecedent, r.Consequent)
	}},
	// A -> x alongside A -> C: conflicting alias, left as is.
	{common.KindAlias, true, func(r, o *common.Relationship) (string, string, string) {
		return o.Antecedent, o.Consequent, fmt.Sprintf("[[%s]] -> [[%s]] conflicts with [[%s]] -> [[%s]]", o.Antecedent, o.Consequent, r.Antecedent, r.Consequent)
	}},
	// A => x becomes C => x.
	{common.KindImplication, true, func(r, o *common.Relationship) (string, string, string) {
		return r.Consequent, o.Consequent, fmt.Sprintf("[[%s]] => [[%s]] via [[%s]]", r.Consequent, o.Consequent, r.Antecedent)
	}},
	// x => A becomes x => C.
	{common.KindImplication, false, func(r, o *common.Relationship) (string, string, string) {
		return o.Antecedent, r.Consequent, fmt.Sprintf("[[%s]] => [[%s]] via [[%s]]", o.Antecedent, r.Consequent, r.Antecedent)
	}},
}

// Find lists the transitive edges of r, ordered by the other record's id.
// Deleted records are ignored.
func (c *TransitiveChecker) Find(ctx context.Context, r *common.Relationship) ([]common.TransitiveEdge, error) {
	edges := make([]common.TransitiveEdge, 0)
	seen := make(map[int64]struct{})

	for _, p := range edgeRules {
		filter := store.RelationshipFilter{Kind: p.kind, Statuses: common.Repointable}
		if p.byAnte {
			filter.Antecedent = r.Antecedent
		} else {
			filter.Consequent = r.Antecedent
		}
		others, err := c.rels.ListRelationships(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list transitive relationships: %w", err)
		}
		for _, o := range others {
			if o.ID == r.ID {
				continue
			}
			if _, ok := seen[o.ID]; ok {
				continue
			}
			seen[o.ID] = struct{}{}

			ante, cons, chain := p.describe(r, o)
			if !r.IsAlias() {
				ante, cons = o.Antecedent, o.Consequent
			}
			edges = append(edges, common.TransitiveEdge{
				Kind:          o.Kind,
				Other:         o,
				NewAntecedent: ante,
				NewConsequent: cons,
				Chain:         chain,
			})
		}
	}

	slices.SortFunc(edges, func(a, b common.TransitiveEdge) int {
		return int(a.Other.ID - b.Other.ID)
	})
	return edges, nil
}

// Repoints filters edges down to the ones whose endpoints change.
func Repoints(edges []common.TransitiveEdge) []common.TransitiveEdge {
	out := make([]common.TransitiveEdge, 0, len(edges))
	for _, e := range edges {
		if e.NewAntecedent == e.Other.Antecedent && e.NewConsequent == e.Other.Consequent {
			continue
		}
		out = append(out, e)
	}
	return out
}
