// Package rewrite propagates an alias or implication across every store that
// references its tag names, and reverts it from the undo ledger.
//
// A forward pass runs, in order: edge repointing, category consistency,
// locked tag and saved filter substitution, the ledgered live tag pass,
// follower migration, artist renaming and count fix-up. Alias and
// implication share the pipeline; implications only run the live tag pass
// and the count fix-up.
package rewrite

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/ledger"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/relationship"
	"github.com/OFFIS-RIT/tagrel/pkg/store"

	"golang.org/x/sync/errgroup"
)

type Direction string

const (
	Forward Direction = "forward"
	Reverse Direction = "reverse"
)

const (
	DefaultBatchSize            = 50
	DefaultCategoryChangeCutoff = 10000
)

type Config struct {
	BatchSize            int
	CategoryChangeCutoff int64
}

// ChangeHook is told about every other relationship the repointing step
// rewrote or retired.
type ChangeHook func(ctx context.Context, before, after *common.Relationship)

type Engine struct {
	store   store.Store
	ledger  *ledger.Ledger
	checker *relationship.TransitiveChecker
	cfg     Config
	onEdge  ChangeHook
}

type Option func(*Engine)

func WithChangeHook(h ChangeHook) Option {
	return func(e *Engine) {
		e.onEdge = h
	}
}

func New(s store.Store, l *ledger.Ledger, cfg Config, opts ...Option) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CategoryChangeCutoff <= 0 {
		cfg.CategoryChangeCutoff = DefaultCategoryChangeCutoff
	}
	e := &Engine{
		store:   s,
		ledger:  l,
		checker: relationship.NewTransitiveChecker(s),
		cfg:     cfg,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// Result summarizes one pass.
type Result struct {
	Direction       Direction
	Repointed       int
	Retired         int
	CategoryChanged bool
	LockedTags      int
	Blacklists      int
	Posts           int
	FollowersMoved  int
	ArtistRenamed   bool
	UndoID          int64
	AntecedentCount int64
	ConsequentCount int64
	Duration        time.Duration
}

// Apply runs the forward pass for r. Every step is idempotent, so a failed
// attempt can simply be run again.
func (e *Engine) Apply(ctx context.Context, r *common.Relationship) (*Result, error) {
	start := time.Now()
	res := &Result{Direction: Forward}
	ante, cons := r.Antecedent, r.Consequent

	for _, name := range []string{ante, cons} {
		if _, err := e.store.FindOrCreateTag(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to find or create tag %s: %w", name, err)
		}
	}

	if r.IsAlias() {
		if err := e.repoint(ctx, r, res); err != nil {
			return nil, err
		}
		e.ensureCategory(ctx, r, res)
		if err := e.substitute(ctx, ante, cons, Forward, res); err != nil {
			return nil, err
		}
	}

	rec, err := e.captureLive(ctx, r)
	if err != nil {
		return nil, err
	}
	res.UndoID = rec.ID
	if err := e.replayLive(ctx, r, rec, Forward, res); err != nil {
		return nil, err
	}

	if r.IsAlias() {
		if err := e.moveFollowers(ctx, ante, cons, nil, Forward, res); err != nil {
			return nil, err
		}
		if err := e.renameArtist(ctx, ante, cons, res); err != nil {
			return nil, err
		}
	}

	if err := e.fixCounts(ctx, ante, cons, res); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	logger.Info("[Rewrite] Forward pass complete",
		"relationship_id", r.ID,
		"antecedent", ante,
		"consequent", cons,
		"repointed", res.Repointed,
		"retired", res.Retired,
		"locked_tags", res.LockedTags,
		"blacklists", res.Blacklists,
		"posts", res.Posts,
		"followers", res.FollowersMoved,
		"duration", res.Duration,
	)
	return res, nil
}

// Revert undoes r using rec. Live tags are replayed from the ledger only;
// repointed edges and category changes are not reverted.
func (e *Engine) Revert(ctx context.Context, r *common.Relationship, rec *common.UndoRecord) (*Result, error) {
	start := time.Now()
	res := &Result{Direction: Reverse, UndoID: rec.ID}
	ante, cons := r.Antecedent, r.Consequent

	if r.IsAlias() {
		if err := e.substitute(ctx, cons, ante, Reverse, res); err != nil {
			return nil, err
		}
	}

	if err := e.replayLive(ctx, r, rec, Reverse, res); err != nil {
		return nil, err
	}

	if r.IsAlias() {
		if len(rec.FollowerUserIDs) > 0 {
			if err := e.restoreFollowers(ctx, cons, ante, rec, res); err != nil {
				return nil, err
			}
		}
		if err := e.renameArtist(ctx, cons, ante, res); err != nil {
			return nil, err
		}
	}

	if err := e.fixCounts(ctx, ante, cons, res); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	logger.Info("[Rewrite] Reverse pass complete",
		"relationship_id", r.ID,
		"antecedent", ante,
		"consequent", cons,
		"undo_id", rec.ID,
		"posts", res.Posts,
		"followers", res.FollowersMoved,
		"duration", res.Duration,
	)
	return res, nil
}

// substitute rewrites locked tags and saved filters. The two stores are
// independent so both passes run concurrently.
func (e *Engine) substitute(ctx context.Context, from, to string, dir Direction, res *Result) error {
	var locked, blacklists int
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		n, err := e.lockedTagsPass(ectx, from, to, dir)
		locked = n
		return err
	})
	eg.Go(func() error {
		n, err := e.blacklistPass(ectx, from, to, dir)
		blacklists = n
		return err
	})
	if err := eg.Wait(); err != nil {
		return err
	}
	res.LockedTags = locked
	res.Blacklists = blacklists
	return nil
}

func (e *Engine) fixCounts(ctx context.Context, ante, cons string, res *Result) error {
	// Counts race with concurrent tag edits; the next maintenance run
	// settles any drift.
	n, err := e.store.FixPostCount(ctx, ante)
	if err != nil {
		return fmt.Errorf("failed to fix post count of %s: %w", ante, err)
	}
	res.AntecedentCount = n
	n, err = e.store.FixPostCount(ctx, cons)
	if err != nil {
		return fmt.Errorf("failed to fix post count of %s: %w", cons, err)
	}
	res.ConsequentCount = n
	return nil
}
