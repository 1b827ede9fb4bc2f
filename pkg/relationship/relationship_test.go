package relationship

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *memory.Store, kind common.Kind, ante, cons string, status common.Status) *common.Relationship {
	t.Helper()
	r := &common.Relationship{Kind: kind, Antecedent: ante, Consequent: cons, Status: status, CreatorID: 1}
	require.NoError(t, s.CreateRelationship(context.Background(), r))
	return r
}

func candidate(kind common.Kind, ante, cons string) *common.Relationship {
	return &common.Relationship{Kind: kind, Antecedent: ante, Consequent: cons, Status: common.StatusPending}
}

func requireInvalid(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), contains)
}

func TestValidator(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown kind", func(t *testing.T) {
		v := NewValidator(memory.New())
		requireInvalid(t, v.Validate(ctx, candidate("rename", "a", "b")), "unknown relationship kind")
	})

	t.Run("self alias", func(t *testing.T) {
		v := NewValidator(memory.New())
		requireInvalid(t, v.Validate(ctx, candidate(common.KindAlias, "a", "a")), "cannot alias a tag to itself")
	})

	t.Run("self implication", func(t *testing.T) {
		v := NewValidator(memory.New())
		requireInvalid(t, v.Validate(ctx, candidate(common.KindImplication, "a", "a")), "cannot implicate a tag to itself")
	})

	t.Run("antecedent already aliased", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindAlias, "a", "b", common.StatusPending)
		err := NewValidator(s).Validate(ctx, candidate(common.KindAlias, "a", "c"))
		requireInvalid(t, err, "antecedent a has already been aliased to b")
	})

	t.Run("deleted and errored records are ignored", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindAlias, "a", "b", common.StatusDeleted)
		seed(t, s, common.KindAlias, "a", "d", common.StatusError)
		require.NoError(t, NewValidator(s).Validate(ctx, candidate(common.KindAlias, "a", "c")))
	})

	t.Run("record does not conflict with itself", func(t *testing.T) {
		s := memory.New()
		r := seed(t, s, common.KindAlias, "a", "b", common.StatusPending)
		require.NoError(t, NewValidator(s).Validate(ctx, r))
	})

	t.Run("alias cycle", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindAlias, "a", "b", common.StatusActive)
		err := NewValidator(s).Validate(ctx, candidate(common.KindAlias, "b", "a"))
		requireInvalid(t, err, "would create a cycle")
	})

	t.Run("alias onto aliased consequent", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindAlias, "b", "c", common.StatusActive)
		err := NewValidator(s).Validate(ctx, candidate(common.KindAlias, "a", "b"))
		requireInvalid(t, err, "a tag alias for b already exists")
	})

	t.Run("duplicate implication", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindImplication, "a", "b", common.StatusQueued)
		err := NewValidator(s).Validate(ctx, candidate(common.KindImplication, "a", "b"))
		requireInvalid(t, err, "already exists")
	})

	t.Run("implication with other consequent is allowed", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindImplication, "a", "b", common.StatusActive)
		require.NoError(t, NewValidator(s).Validate(ctx, candidate(common.KindImplication, "a", "c")))
	})

	t.Run("implication on aliased antecedent", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindAlias, "a", "x", common.StatusActive)
		err := NewValidator(s).Validate(ctx, candidate(common.KindImplication, "a", "b"))
		requireInvalid(t, err, "antecedent a is aliased to x")
	})

	t.Run("implication resolving to one tag", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindAlias, "a", "b", common.StatusActive)
		err := NewValidator(s).Validate(ctx, candidate(common.KindImplication, "a", "b"))
		requireInvalid(t, err, "resolves to the same tag b")
	})

	t.Run("circular implication", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindImplication, "b", "a", common.StatusPending)
		err := NewValidator(s).Validate(ctx, candidate(common.KindImplication, "a", "b"))
		requireInvalid(t, err, "circular implication")
	})

	t.Run("collects several problems", func(t *testing.T) {
		s := memory.New()
		seed(t, s, common.KindAlias, "a", "x", common.StatusActive)
		seed(t, s, common.KindAlias, "b", "y", common.StatusActive)
		err := NewValidator(s).Validate(ctx, candidate(common.KindImplication, "a", "b"))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Messages, 2)
	})
}

func TestTransitiveChecker_Alias(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	chained := seed(t, s, common.KindAlias, "x", "a", common.StatusActive)
	conflicting := seed(t, s, common.KindAlias, "a", "y", common.StatusPending)
	implied := seed(t, s, common.KindImplication, "a", "z", common.StatusActive)
	implying := seed(t, s, common.KindImplication, "w", "a", common.StatusQueued)
	seed(t, s, common.KindImplication, "a", "q", common.StatusDeleted)
	errored := seed(t, s, common.KindAlias, "v", "a", common.StatusError)
	r := seed(t, s, common.KindAlias, "a", "c", common.StatusQueued)

	edges, err := NewTransitiveChecker(s).Find(ctx, r)
	require.NoError(t, err)
	require.Len(t, edges, 5)

	assert.Equal(t, chained.ID, edges[0].Other.ID)
	assert.Equal(t, "x", edges[0].NewAntecedent)
	assert.Equal(t, "c", edges[0].NewConsequent)
	assert.Equal(t, "[[x]] -> [[a]] -> [[c]]", edges[0].Chain)

	assert.Equal(t, conflicting.ID, edges[1].Other.ID)
	assert.Equal(t, "a", edges[1].NewAntecedent)
	assert.Equal(t, "y", edges[1].NewConsequent)

	assert.Equal(t, implied.ID, edges[2].Other.ID)
	assert.Equal(t, "c", edges[2].NewAntecedent)
	assert.Equal(t, "z", edges[2].NewConsequent)

	assert.Equal(t, implying.ID, edges[3].Other.ID)
	assert.Equal(t, "w", edges[3].NewAntecedent)
	assert.Equal(t, "c", edges[3].NewConsequent)

	assert.Equal(t, errored.ID, edges[4].Other.ID)
	assert.Equal(t, "v", edges[4].NewAntecedent)
	assert.Equal(t, "c", edges[4].NewConsequent)

	repoints := Repoints(edges)
	require.Len(t, repoints, 4)
	for _, e := range repoints {
		assert.NotEqual(t, conflicting.ID, e.Other.ID)
	}
}

func TestTransitiveChecker_ImplicationKeepsEndpoints(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	seed(t, s, common.KindImplication, "a", "z", common.StatusActive)
	seed(t, s, common.KindImplication, "w", "a", common.StatusActive)
	r := seed(t, s, common.KindImplication, "a", "c", common.StatusPending)

	edges, err := NewTransitiveChecker(s).Find(ctx, r)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, e.Other.Antecedent, e.NewAntecedent)
		assert.Equal(t, e.Other.Consequent, e.NewConsequent)
	}
	assert.Empty(t, Repoints(edges))
}
