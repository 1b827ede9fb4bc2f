package rewrite

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/tagrel/internal/metrics"
	"github.com/OFFIS-RIT/tagrel/internal/util"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/relationship"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
)

const repointTries = 3

// repoint absorbs every chain through r's antecedent so no alias keeps
// pointing at a name that is being retired. Other rows are written with an
// optimistic version check and reloaded on conflict.
func (e *Engine) repoint(ctx context.Context, r *common.Relationship, res *Result) error {
	edges, err := e.checker.Find(ctx, r)
	if err != nil {
		return err
	}
	for _, edge := range relationship.Repoints(edges) {
		id := edge.Other.ID
		err := util.RetryErrWithContext(ctx, repointTries, func(ctx context.Context) error {
			return e.repointOne(ctx, r, id, res)
		})
		if err != nil {
			return fmt.Errorf("failed to repoint %s: %w", edge.Other.Title(), err)
		}
	}
	return nil
}

func (e *Engine) repointOne(ctx context.Context, r *common.Relationship, id int64, res *Result) error {
	other, err := e.store.GetRelationship(ctx, id)
	if err != nil {
		return err
	}
	if other.Status == common.StatusDeleted {
		return nil
	}
	if other.Status == common.StatusProcessing {
		logger.Warn("[Rewrite] Skipping repoint of relationship owned by another worker", "relationship_id", r.ID, "other_id", other.ID)
		return nil
	}

	ante, cons := other.Antecedent, other.Consequent
	if other.Kind == common.KindImplication && ante == r.Antecedent {
		ante = r.Consequent
	}
	if cons == r.Antecedent {
		cons = r.Consequent
	}
	if ante == other.Antecedent && cons == other.Consequent {
		return nil
	}

	before := *other
	retire := ante == cons
	if !retire {
		dups, err := e.store.ListRelationships(ctx, store.RelationshipFilter{
			Kind:       other.Kind,
			Antecedent: ante,
			Consequent: cons,
			Statuses:   common.DuplicateRelevant,
		})
		if err != nil {
			return err
		}
		for _, d := range dups {
			if d.ID != other.ID {
				retire = true
				break
			}
		}
	}

	if retire {
		if err := other.Retire(); err != nil {
			if errors.Is(err, common.ErrInvalidTransition) {
				logger.Warn("[Rewrite] Cannot retire collapsed relationship", "relationship_id", r.ID, "other_id", other.ID, "err", err)
				return nil
			}
			return err
		}
	} else {
		other.Antecedent, other.Consequent = ante, cons
	}

	if err := e.store.UpdateRelationship(ctx, other); err != nil {
		return err
	}

	if retire {
		res.Retired++
	} else {
		res.Repointed++
	}
	metrics.RewriteRecordsTotal.WithLabelValues(passRepoint, string(Forward)).Inc()
	logger.Info("[Rewrite] Repointed relationship",
		"relationship_id", r.ID,
		"other_id", other.ID,
		"from", before.Label(),
		"to", other.Label(),
		"retired", retire,
	)
	if e.onEdge != nil {
		e.onEdge(ctx, &before, other)
	}
	return nil
}

// ensureCategory copies a specific antecedent category onto a small,
// unlocked, general consequent. Failures are logged and never abort the
// pass.
func (e *Engine) ensureCategory(ctx context.Context, r *common.Relationship, res *Result) {
	ante, err := e.store.GetTag(ctx, r.Antecedent)
	if err != nil {
		logger.Warn("[Rewrite] Skipping category check", "relationship_id", r.ID, "tag", r.Antecedent, "err", err)
		return
	}
	cons, err := e.store.GetTag(ctx, r.Consequent)
	if err != nil {
		logger.Warn("[Rewrite] Skipping category check", "relationship_id", r.ID, "tag", r.Consequent, "err", err)
		return
	}

	if !shouldCopyCategory(ante, cons, e.cfg.CategoryChangeCutoff) {
		return
	}

	reason := fmt.Sprintf("alias #%d (%s)", r.ID, r.Label())
	if err := e.store.UpdateTagCategory(ctx, cons.Name, ante.Category, reason); err != nil {
		logger.Warn("[Rewrite] Failed to copy category", "relationship_id", r.ID, "tag", cons.Name, "err", err)
		return
	}
	res.CategoryChanged = true
	logger.Info("[Rewrite] Copied category", "relationship_id", r.ID, "tag", cons.Name, "category", ante.Category.String())
}

func shouldCopyCategory(ante, cons *common.Tag, cutoff int64) bool {
	if cons.PostCount >= cutoff {
		return false
	}
	if cons.IsLocked {
		return false
	}
	if cons.Category != common.CategoryGeneral {
		return false
	}
	return ante.Category != common.CategoryGeneral
}

// moveFollowers repoints subscriptions and recomputes both follower counts.
// userIDs nil moves every follower of from.
func (e *Engine) moveFollowers(ctx context.Context, from, to string, userIDs []int64, dir Direction, res *Result) error {
	moving := userIDs
	if moving == nil {
		var err error
		moving, err = e.store.ListFollowers(ctx, from)
		if err != nil {
			return fmt.Errorf("failed to list followers of %s: %w", from, err)
		}
	}
	if err := e.store.MoveFollowers(ctx, from, to, userIDs); err != nil {
		return fmt.Errorf("failed to move followers from %s to %s: %w", from, to, err)
	}
	for _, name := range []string{from, to} {
		if _, err := e.store.FixFollowerCount(ctx, name); err != nil {
			return fmt.Errorf("failed to fix follower count of %s: %w", name, err)
		}
	}
	res.FollowersMoved = len(moving)
	metrics.RewriteRecordsTotal.WithLabelValues(passFollowers, string(dir)).Add(float64(len(moving)))
	return nil
}

// restoreFollowers hands the ledgered followers back to to. Users that
// followed both names before the forward pass keep their follow of from.
func (e *Engine) restoreFollowers(ctx context.Context, from, to string, rec *common.UndoRecord, res *Result) error {
	moving := make([]int64, 0, len(rec.FollowerUserIDs))
	for _, id := range rec.FollowerUserIDs {
		if !slices.Contains(rec.SharedFollowerUserIDs, id) {
			moving = append(moving, id)
		}
	}
	if len(rec.SharedFollowerUserIDs) > 0 {
		if err := e.store.CopyFollowers(ctx, from, to, rec.SharedFollowerUserIDs); err != nil {
			return fmt.Errorf("failed to copy followers from %s to %s: %w", from, to, err)
		}
	}
	if err := e.moveFollowers(ctx, from, to, moving, Reverse, res); err != nil {
		return err
	}
	res.FollowersMoved += len(rec.SharedFollowerUserIDs)
	return nil
}

// renameArtist gives the artist entity of the artist-category tag from the
// name to, unless to already has an artist of its own.
func (e *Engine) renameArtist(ctx context.Context, from, to string, res *Result) error {
	tag, err := e.store.GetTag(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load tag %s: %w", from, err)
	}
	if tag.Category != common.CategoryArtist {
		return nil
	}

	artist, err := e.store.FindArtist(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load artist %s: %w", from, err)
	}
	_, err = e.store.FindArtist(ctx, to)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load artist %s: %w", to, err)
	}

	if err := e.store.RenameArtist(ctx, artist.ID, to); err != nil {
		return fmt.Errorf("failed to rename artist %s to %s: %w", from, to, err)
	}
	res.ArtistRenamed = true
	logger.Info("[Rewrite] Renamed artist", "artist_id", artist.ID, "from", from, "to", to)
	return nil
}
