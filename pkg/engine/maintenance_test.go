package engine

import (
	"context"
	"testing"
	"time"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/leaselock"
	"github.com/OFFIS-RIT/tagrel/pkg/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixNonzeroCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.mem.PutTag(common.Tag{Name: "a", PostCount: 5})
	f.mem.PutTag(common.Tag{Name: "c", PostCount: 0})
	f.mem.PutPost(common.Post{ID: 1, TagString: "b"})

	for _, r := range []*common.Relationship{
		{Kind: common.KindAlias, Antecedent: "a", Consequent: "b", Status: common.StatusActive},
		{Kind: common.KindAlias, Antecedent: "c", Consequent: "d", Status: common.StatusActive},
		{Kind: common.KindAlias, Antecedent: "e", Consequent: "f", Status: common.StatusActive},
		{Kind: common.KindImplication, Antecedent: "a", Consequent: "g", Status: common.StatusActive},
	} {
		require.NoError(t, f.mem.CreateRelationship(ctx, r))
	}

	fixed, err := f.x.FixNonzeroCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	tag, err := f.mem.GetTag(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, tag.PostCount)
}

func TestRefreshPostCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.mem.PutTag(common.Tag{Name: "b", PostCount: 3})
	f.mem.PutTag(common.Tag{Name: "d", PostCount: 4})

	active := &common.Relationship{Kind: common.KindAlias, Antecedent: "a", Consequent: "b", Status: common.StatusActive}
	processing := &common.Relationship{Kind: common.KindAlias, Antecedent: "c", Consequent: "d", Status: common.StatusProcessing}
	deleted := &common.Relationship{Kind: common.KindImplication, Antecedent: "x", Consequent: "b", Status: common.StatusDeleted}
	for _, r := range []*common.Relationship{active, processing, deleted} {
		require.NoError(t, f.mem.CreateRelationship(ctx, r))
	}

	updated, err := f.x.RefreshPostCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, int64(3), f.reload(t, active.ID).PostCountSnapshot)
	assert.Zero(t, f.reload(t, processing.ID).PostCountSnapshot)
	assert.Zero(t, f.reload(t, deleted.ID).PostCountSnapshot)

	updated, err = f.x.RefreshPostCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestRecoverStale(t *testing.T) {
	ctx := context.Background()
	locker := leaselock.NewLocal()
	f := newFixture(t, Config{StaleAfter: 30 * time.Minute},
		WithLocker(locker),
		WithClock(func() time.Time { return time.Now().Add(time.Hour) }),
	)

	stale := &common.Relationship{Kind: common.KindAlias, Antecedent: "a", Consequent: "b", Status: common.StatusProcessing, ForumThreadRef: "t"}
	held := &common.Relationship{Kind: common.KindAlias, Antecedent: "c", Consequent: "d", Status: common.StatusProcessing}
	queued := &common.Relationship{Kind: common.KindAlias, Antecedent: "e", Consequent: "f", Status: common.StatusQueued}
	for _, r := range []*common.Relationship{stale, held, queued} {
		require.NoError(t, f.mem.CreateRelationship(ctx, r))
	}

	var recovered int
	err := locker.WithLease(ctx, leaselock.RelationshipKey(held.ID), leaselock.Options{}, func(ctx context.Context) error {
		var err error
		recovered, err = f.x.RecoverStale(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got := f.reload(t, stale.ID)
	assert.Equal(t, common.StatusError, got.Status)
	assert.Equal(t, "stale processing recovered", got.ErrorMessage)
	assert.Equal(t, common.StatusProcessing, f.reload(t, held.ID).Status)
	assert.Equal(t, common.StatusQueued, f.reload(t, queued.ID).Status)
	assert.Equal(t, 1, f.forum.count(notify.EventFailed))
}

func TestRecoverStaleKeepsFreshRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{StaleAfter: 30 * time.Minute})

	r := &common.Relationship{Kind: common.KindAlias, Antecedent: "a", Consequent: "b", Status: common.StatusProcessing}
	require.NoError(t, f.mem.CreateRelationship(ctx, r))

	recovered, err := f.x.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
	assert.Equal(t, common.StatusProcessing, f.reload(t, r.ID).Status)
}
