// Package relationship holds the structural checks that run before a
// relationship is created or queued, and the transitive closure traversal
// shared by the moderation views and the rewrite engine.
package relationship

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
	"github.com/OFFIS-RIT/tagrel/pkg/tagquery"
)

// Reader is the slice of the relationship store the checks need.
type Reader interface {
	ListRelationships(ctx context.Context, filter store.RelationshipFilter) ([]*common.Relationship, error)
}

// ValidationError collects every structural problem found for a candidate.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

type Validator struct {
	rels Reader
}

func NewValidator(rels Reader) *Validator {
	return &Validator{rels: rels}
}

// Validate runs the create and queue time checks for r. It returns a
// *ValidationError when r must be refused.
func (v *Validator) Validate(ctx context.Context, r *common.Relationship) error {
	verr := &ValidationError{}

	if !r.Kind.Valid() {
		verr.add("unknown relationship kind %q", r.Kind)
		return verr
	}
	if r.Antecedent == "" || r.Consequent == "" {
		verr.add("antecedent and consequent are required")
		return verr
	}
	if r.Antecedent == r.Consequent {
		verr.add("cannot %s a tag to itself", verb(r.Kind))
		return verr
	}

	if err := v.checkDuplicate(ctx, r, verr); err != nil {
		return err
	}

	var err error
	switch r.Kind {
	case common.KindAlias:
		err = v.checkAliasTransitive(ctx, r, verr)
	case common.KindImplication:
		err = v.checkImplication(ctx, r, verr)
	}
	if err != nil {
		return err
	}

	if len(verr.Messages) > 0 {
		return verr
	}
	return nil
}

func verb(k common.Kind) string {
	if k == common.KindAlias {
		return "alias"
	}
	return "implicate"
}

func (v *Validator) list(ctx context.Context, filter store.RelationshipFilter, exclude int64) ([]*common.Relationship, error) {
	rels, err := v.rels.ListRelationships(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	out := rels[:0]
	for _, o := range rels {
		if o.ID == exclude {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// checkDuplicate enforces that an alias antecedent is consumed at most once
// and that an implication pair exists at most once among live records.
func (v *Validator) checkDuplicate(ctx context.Context, r *common.Relationship, verr *ValidationError) error {
	filter := store.RelationshipFilter{
		Kind:       r.Kind,
		Antecedent: r.Antecedent,
		Statuses:   common.DuplicateRelevant,
	}
	if r.Kind == common.KindImplication {
		filter.Consequent = r.Consequent
	}
	dups, err := v.list(ctx, filter, r.ID)
	if err != nil {
		return err
	}
	if len(dups) == 0 {
		return nil
	}
	if r.Kind == common.KindAlias {
		verr.add("antecedent %s has already been aliased to %s (%s)", r.Antecedent, dups[0].Consequent, dups[0].Title())
		return nil
	}
	verr.add("%s already exists (%s)", r.Label(), dups[0].Title())
	return nil
}

// checkAliasTransitive refuses an alias whose consequent is itself the
// antecedent of an active alias. This keeps every alias pointing at a
// terminal name and refuses b -> a while a -> b is active.
func (v *Validator) checkAliasTransitive(ctx context.Context, r *common.Relationship, verr *ValidationError) error {
	active, err := v.list(ctx, store.RelationshipFilter{
		Kind:       common.KindAlias,
		Antecedent: r.Consequent,
		Statuses:   []common.Status{common.StatusActive},
	}, r.ID)
	if err != nil {
		return err
	}
	for _, o := range active {
		if o.Consequent == r.Antecedent {
			verr.add("%s would create a cycle with active %s", r.Label(), o.Title())
			continue
		}
		verr.add("a tag alias for %s already exists (%s)", r.Consequent, o.Title())
	}
	return nil
}

// checkImplication refuses implications on aliased names and direct cycles.
func (v *Validator) checkImplication(ctx context.Context, r *common.Relationship, verr *ValidationError) error {
	aliases := make(map[string]string)
	for _, name := range []string{r.Antecedent, r.Consequent} {
		active, err := v.list(ctx, store.RelationshipFilter{
			Kind:       common.KindAlias,
			Antecedent: name,
			Statuses:   []common.Status{common.StatusActive},
		}, 0)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			aliases[name] = active[0].Consequent
		}
	}
	resolved := tagquery.ToAliased([]string{r.Antecedent, r.Consequent}, aliases)
	if len(resolved) == 1 {
		verr.add("%s resolves to the same tag %s through aliases", r.Label(), resolved[0])
		return nil
	}
	if to, ok := aliases[r.Antecedent]; ok {
		verr.add("antecedent %s is aliased to %s", r.Antecedent, to)
	}
	if to, ok := aliases[r.Consequent]; ok {
		verr.add("consequent %s is aliased to %s", r.Consequent, to)
	}

	reverse, err := v.list(ctx, store.RelationshipFilter{
		Kind:       common.KindImplication,
		Antecedent: r.Consequent,
		Consequent: r.Antecedent,
		Statuses:   common.DuplicateRelevant,
	}, r.ID)
	if err != nil {
		return err
	}
	if len(reverse) > 0 {
		verr.add("%s would create a circular implication with %s", r.Label(), reverse[0].Title())
	}
	return nil
}
