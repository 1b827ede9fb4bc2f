package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/internal/metrics"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/leaselock"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/notify"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
)

const staleMessage = "stale processing recovered"

// FixNonzeroCounts recomputes the post count of antecedents of live aliases
// that still report posts. It returns the number of tags fixed.
func (x *Executor) FixNonzeroCounts(ctx context.Context) (int, error) {
	rels, err := x.store.ListRelationships(ctx, store.RelationshipFilter{
		Kind:     common.KindAlias,
		Statuses: []common.Status{common.StatusActive, common.StatusProcessing},
	})
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, r := range rels {
		if err := ctx.Err(); err != nil {
			return fixed, err
		}
		tag, err := x.store.GetTag(ctx, r.Antecedent)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fixed, err
		}
		if tag.PostCount == 0 {
			continue
		}
		count, err := x.store.FixPostCount(ctx, r.Antecedent)
		if err != nil {
			return fixed, fmt.Errorf("failed to fix post count of %s: %w", r.Antecedent, err)
		}
		logger.Debug("[Maintenance] Fixed antecedent count", "relationship_id", r.ID, "antecedent", r.Antecedent, "was", tag.PostCount, "now", count)
		fixed++
	}
	metrics.MaintenanceRunsTotal.WithLabelValues("fix_nonzero_counts", "ok").Inc()
	return fixed, nil
}

// RefreshPostCounts updates the post count snapshot of every non-processing
// live relationship from its consequent tag.
func (x *Executor) RefreshPostCounts(ctx context.Context) (int, error) {
	rels, err := x.store.ListRelationships(ctx, store.RelationshipFilter{Statuses: common.DuplicateRelevant})
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range rels {
		if r.Status == common.StatusProcessing {
			continue
		}
		tag, err := x.store.GetTag(ctx, r.Consequent)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return updated, err
		}
		if tag.PostCount == r.PostCountSnapshot {
			continue
		}
		r.PostCountSnapshot = tag.PostCount
		if err := x.store.UpdateRelationship(ctx, r); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return updated, err
		}
		updated++
	}
	metrics.MaintenanceRunsTotal.WithLabelValues("refresh_post_counts", "ok").Inc()
	return updated, nil
}

// RecoverStale fails records that have been processing for longer than
// StaleAfter while nobody holds their lease, e.g. after a worker crash.
func (x *Executor) RecoverStale(ctx context.Context) (int, error) {
	rels, err := x.store.ListRelationships(ctx, store.RelationshipFilter{Statuses: []common.Status{common.StatusProcessing}})
	if err != nil {
		return 0, err
	}

	cutoff := x.now().Add(-x.cfg.StaleAfter)
	recovered := 0
	for _, r := range rels {
		if !r.UpdatedAt.Before(cutoff) {
			continue
		}
		opts := x.cfg.Lease
		opts.Wait = false
		err := x.locker.WithLease(ctx, leaselock.RelationshipKey(r.ID), opts, func(ctx context.Context) error {
			cur, err := x.store.GetRelationship(ctx, r.ID)
			if err != nil {
				return err
			}
			if cur.Status != common.StatusProcessing {
				return nil
			}
			before := *cur
			if err := cur.Fail(staleMessage); err != nil {
				return err
			}
			if err := x.store.UpdateRelationship(ctx, cur); err != nil {
				return err
			}
			x.recordUpdate(ctx, &before, cur)
			x.notifyForum(ctx, cur, notify.FailureMessage(cur, errors.New(staleMessage)), notify.EventFailed)
			recovered++
			logger.Warn("[Maintenance] Recovered stale relationship", "relationship_id", cur.ID, "updated_at", before.UpdatedAt)
			return nil
		})
		if errors.Is(err, leaselock.ErrBusy) {
			continue
		}
		if err != nil {
			metrics.MaintenanceRunsTotal.WithLabelValues("recover_stale", "error").Inc()
			return recovered, fmt.Errorf("failed to recover relationship %d: %w", r.ID, err)
		}
	}
	metrics.MaintenanceRunsTotal.WithLabelValues("recover_stale", "ok").Inc()
	return recovered, nil
}
