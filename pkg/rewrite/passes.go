package rewrite

import (
	"context"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/tagrel/internal/metrics"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/ledger"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
	"github.com/OFFIS-RIT/tagrel/pkg/tagquery"
)

const (
	passLockedTags = "locked_tags"
	passBlacklists = "blacklists"
	passLiveTags   = "live_tags"
	passFollowers  = "followers"
	passRepoint    = "repoint"
)

// pagedRewrite walks a store page by page with keyset pagination and writes
// back every text that changed. Each page is written as its own unit so no
// single transaction spans the whole scan.
func pagedRewrite[T any](
	ctx context.Context,
	pass string,
	dir Direction,
	batchSize int,
	overrides map[string]string,
	fetch func(ctx context.Context, afterID int64, limit int) ([]T, error),
	key func(T) (int64, string),
	write func(ctx context.Context, updates map[int64]string) error,
) (int, error) {
	var afterID int64
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := fetch(ctx, afterID, batchSize)
		if err != nil {
			return total, fmt.Errorf("%s: failed to load page after %d: %w", pass, afterID, err)
		}
		if len(page) == 0 {
			return total, nil
		}

		updates := make(map[int64]string)
		for _, item := range page {
			id, text := key(item)
			rewritten, n := tagquery.Rewrite(text, overrides)
			if n > 0 && rewritten != text {
				updates[id] = rewritten
			}
			afterID = id
		}
		if len(updates) > 0 {
			if err := write(ctx, updates); err != nil {
				return total, fmt.Errorf("%s: failed to write batch: %w", pass, err)
			}
			total += len(updates)
			metrics.RewriteRecordsTotal.WithLabelValues(pass, string(dir)).Add(float64(len(updates)))
		}
		metrics.RewriteBatchesTotal.WithLabelValues(pass).Inc()

		if len(page) < batchSize {
			return total, nil
		}
	}
}

func (e *Engine) lockedTagsPass(ctx context.Context, from, to string, dir Direction) (int, error) {
	n, err := pagedRewrite(ctx, passLockedTags, dir, e.cfg.BatchSize,
		map[string]string{from: to},
		func(ctx context.Context, afterID int64, limit int) ([]common.Post, error) {
			return e.store.PostsWithLockedTag(ctx, from, afterID, limit)
		},
		func(p common.Post) (int64, string) { return p.ID, p.LockedTags },
		e.store.UpdateLockedTags,
	)
	if err != nil {
		return n, err
	}
	logger.Debug("[Rewrite] Locked tags rewritten", "from", from, "to", to, "count", n)
	return n, nil
}

func (e *Engine) blacklistPass(ctx context.Context, from, to string, dir Direction) (int, error) {
	n, err := pagedRewrite(ctx, passBlacklists, dir, e.cfg.BatchSize,
		map[string]string{from: to},
		func(ctx context.Context, afterID int64, limit int) ([]common.User, error) {
			return e.store.UsersWithBlacklistedTag(ctx, from, afterID, limit)
		},
		func(u common.User) (int64, string) { return u.ID, u.BlacklistedTags },
		e.store.UpdateBlacklists,
	)
	if err != nil {
		return n, err
	}
	logger.Debug("[Rewrite] Blacklists rewritten", "from", from, "to", to, "count", n)
	return n, nil
}

// captureLive writes the undo record before any live tag is touched. An
// alias touches every post carrying the antecedent and moves every follower;
// an implication only touches posts still missing the consequent.
func (e *Engine) captureLive(ctx context.Context, r *common.Relationship) (*common.UndoRecord, error) {
	ids, err := e.store.PostIDsWithTag(ctx, r.Antecedent)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts tagged %s: %w", r.Antecedent, err)
	}

	snap := ledger.Snapshot{}
	if r.IsAlias() {
		snap.FollowerIDs, err = e.store.ListFollowers(ctx, r.Antecedent)
		if err != nil {
			return nil, fmt.Errorf("failed to list followers of %s: %w", r.Antecedent, err)
		}
		existing, err := e.store.ListFollowers(ctx, r.Consequent)
		if err != nil {
			return nil, fmt.Errorf("failed to list followers of %s: %w", r.Consequent, err)
		}
		for _, id := range snap.FollowerIDs {
			if slices.Contains(existing, id) {
				snap.SharedFollowerIDs = append(snap.SharedFollowerIDs, id)
			}
		}
	} else {
		missing := make([]int64, 0, len(ids))
		err = store.ChunkRange(len(ids), e.cfg.BatchSize, func(start, end int) error {
			posts, err := e.store.GetPosts(ctx, ids[start:end])
			if err != nil {
				return err
			}
			for _, p := range posts {
				if !tagquery.HasTag(p.TagString, r.Consequent) {
					missing = append(missing, p.ID)
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load posts tagged %s: %w", r.Antecedent, err)
		}
		ids = missing
	}

	snap.PostIDs = ids
	return e.ledger.Capture(ctx, r.ID, snap)
}

// liveEdit builds the tag edit for one ledgered post, or false when the post
// needs no change.
func liveEdit(r *common.Relationship, p common.Post, dir Direction) (store.TagEdit, bool) {
	edit := store.TagEdit{PostID: p.ID}
	hasAnte := tagquery.HasTag(p.TagString, r.Antecedent)
	hasCons := tagquery.HasTag(p.TagString, r.Consequent)

	switch {
	case dir == Forward && r.IsAlias():
		if !hasAnte {
			return edit, false
		}
		edit.Remove = []string{r.Antecedent}
		edit.Add = []string{r.Consequent}
	case dir == Forward:
		if !hasAnte || hasCons {
			return edit, false
		}
		edit.Add = []string{r.Consequent}
	case r.IsAlias():
		if hasAnte && !hasCons {
			return edit, false
		}
		edit.Remove = []string{r.Consequent}
		edit.Add = []string{r.Antecedent}
	default:
		if !hasCons {
			return edit, false
		}
		edit.Remove = []string{r.Consequent}
	}
	return edit, true
}

// replayLive edits exactly the posts listed in rec, batch by batch.
func (e *Engine) replayLive(ctx context.Context, r *common.Relationship, rec *common.UndoRecord, dir Direction, res *Result) error {
	ids := rec.AffectedPostIDs
	return store.ChunkRange(len(ids), e.cfg.BatchSize, func(start, end int) error {
		posts, err := e.store.GetPosts(ctx, ids[start:end])
		if err != nil {
			return fmt.Errorf("%s: failed to load posts: %w", passLiveTags, err)
		}
		edits := make([]store.TagEdit, 0, len(posts))
		for _, p := range posts {
			if edit, ok := liveEdit(r, p, dir); ok {
				edits = append(edits, edit)
			}
		}
		if len(edits) > 0 {
			if err := e.store.EditTags(ctx, edits); err != nil {
				return fmt.Errorf("%s: failed to edit tags: %w", passLiveTags, err)
			}
			res.Posts += len(edits)
			metrics.RewriteRecordsTotal.WithLabelValues(passLiveTags, string(dir)).Add(float64(len(edits)))
		}
		metrics.RewriteBatchesTotal.WithLabelValues(passLiveTags).Inc()
		return nil
	})
}
