// Package engine drives relationships through their lifecycle. The Executor
// owns the only path that runs the rewrite engine: Run applies a queued
// relationship with bounded exponential backoff, Undo reverts an active one
// from its undo record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/tagrel/internal/metrics"
	"github.com/OFFIS-RIT/tagrel/internal/util"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/leaselock"
	"github.com/OFFIS-RIT/tagrel/pkg/ledger"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/notify"
	"github.com/OFFIS-RIT/tagrel/pkg/relationship"
	"github.com/OFFIS-RIT/tagrel/pkg/rewrite"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 2 * time.Second
	DefaultStaleAfter = 30 * time.Minute
)

type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	// StaleAfter is how long a record may sit in processing without a live
	// lease before maintenance moves it to error.
	StaleAfter time.Duration
	Rewrite    rewrite.Config
	Lease      leaselock.Options
}

// Sleeper waits between attempts. Tests inject one that records delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// Dispatcher hands a job to the worker pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

type Executor struct {
	store      store.Store
	rewrite    *rewrite.Engine
	ledger     *ledger.Ledger
	validator  *relationship.Validator
	checker    *relationship.TransitiveChecker
	locker     leaselock.Locker
	forum      notify.ForumNotifier
	modlog     notify.ModLog
	dispatcher Dispatcher
	sleeper    Sleeper
	archiver   ledger.Archiver
	now        func() time.Time
	cfg        Config
}

type Option func(*Executor)

func WithLocker(l leaselock.Locker) Option {
	return func(x *Executor) { x.locker = l }
}

func WithForumNotifier(n notify.ForumNotifier) Option {
	return func(x *Executor) { x.forum = n }
}

func WithModLog(m notify.ModLog) Option {
	return func(x *Executor) { x.modlog = m }
}

func WithDispatcher(d Dispatcher) Option {
	return func(x *Executor) { x.dispatcher = d }
}

func WithSleeper(s Sleeper) Option {
	return func(x *Executor) { x.sleeper = s }
}

func WithArchiver(a ledger.Archiver) Option {
	return func(x *Executor) { x.archiver = a }
}

func WithClock(now func() time.Time) Option {
	return func(x *Executor) { x.now = now }
}

func New(s store.Store, cfg Config, opts ...Option) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}

	x := &Executor{
		store:     s,
		validator: relationship.NewValidator(s),
		checker:   relationship.NewTransitiveChecker(s),
		locker:    leaselock.NewLocal(),
		forum:     notify.LogNotifier{},
		modlog:    notify.NewStoreModLog(s),
		sleeper:   SleeperFunc(util.SleepContext),
		now:       time.Now,
		cfg:       cfg,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(x)
	}

	x.ledger = ledger.New(s, ledger.WithArchiver(x.archiver))
	x.rewrite = rewrite.New(s, x.ledger, cfg.Rewrite, rewrite.WithChangeHook(func(ctx context.Context, before, after *common.Relationship) {
		x.recordUpdate(ctx, before, after)
	}))
	return x
}

// Run processes a queued or errored relationship. A second concurrent Run
// of the same id returns leaselock.ErrBusy or ErrNotRunnable. When every
// attempt fails the record lands in Error and a *TerminalError is returned.
func (x *Executor) Run(ctx context.Context, id int64) error {
	err := x.locker.WithLease(ctx, leaselock.RelationshipKey(id), x.cfg.Lease, func(ctx context.Context) error {
		return x.run(ctx, id)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		metrics.RunsTotal.WithLabelValues("", string(OperationProcess), "busy").Inc()
		return fmt.Errorf("relationship %d is held by another worker: %w", id, err)
	}
	return err
}

func (x *Executor) run(ctx context.Context, id int64) error {
	start := x.now()
	r, err := x.store.GetRelationship(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load relationship %d: %w", id, err)
	}

	before := *r
	if err := r.BeginProcessing(); err != nil {
		metrics.RunsTotal.WithLabelValues(string(r.Kind), string(OperationProcess), "not_runnable").Inc()
		return fmt.Errorf("%w: %s is %s", ErrNotRunnable, r.Title(), before.Status)
	}
	if err := x.store.UpdateRelationship(ctx, r); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: %s changed concurrently", ErrNotRunnable, r.Title())
		}
		return fmt.Errorf("failed to mark %s processing: %w", r.Title(), err)
	}
	x.recordUpdate(ctx, &before, r)
	defer func() {
		metrics.RunDuration.WithLabelValues(string(r.Kind), string(OperationProcess)).Observe(x.now().Sub(start).Seconds())
	}()

	logger.Info("[Executor] Processing relationship", "relationship_id", r.ID, "kind", r.Kind, "antecedent", r.Antecedent, "consequent", r.Consequent)

	var result *rewrite.Result
	attempts := 0
	sleep := func(ctx context.Context, d time.Duration) error {
		metrics.RetryDelay.Observe(d.Seconds())
		logger.Info("[Executor] Retrying after backoff", "relationship_id", r.ID, "attempt", attempts+1, "delay", d)
		return x.sleeper.Sleep(ctx, d)
	}
	err = util.RetryWithBackoff(ctx, x.cfg.MaxRetries, x.cfg.BaseDelay, sleep,
		func(err error) bool { return !IsPermanent(err) },
		func(ctx context.Context, attempt int) error {
			attempts = attempt
			// Records coming back from Error may conflict with relationships
			// activated in the meantime.
			if err := x.validator.Validate(ctx, r); err != nil {
				metrics.AttemptsTotal.WithLabelValues(string(r.Kind), "invalid").Inc()
				return err
			}
			res, err := x.rewrite.Apply(ctx, r)
			if err != nil {
				metrics.AttemptsTotal.WithLabelValues(string(r.Kind), "failure").Inc()
				logger.Error("[Executor] Attempt failed", "relationship_id", r.ID, "attempt", attempt, "err", err)
				return err
			}
			metrics.AttemptsTotal.WithLabelValues(string(r.Kind), "success").Inc()
			result = res
			return nil
		},
	)
	if err != nil {
		return x.fail(ctx, r, attempts, err)
	}
	return x.activate(ctx, r, result)
}

func (x *Executor) activate(ctx context.Context, r *common.Relationship, res *rewrite.Result) error {
	before := *r
	if err := r.Activate(res.ConsequentCount); err != nil {
		return err
	}
	if err := x.store.UpdateRelationship(ctx, r); err != nil {
		return fmt.Errorf("failed to activate %s: %w", r.Title(), err)
	}
	x.recordUpdate(ctx, &before, r)

	var approver int64
	if r.ApproverID != nil {
		approver = *r.ApproverID
	}
	x.notifyForum(ctx, r, notify.ApprovalMessage(r, approver), notify.EventApproved)

	metrics.RunsTotal.WithLabelValues(string(r.Kind), string(OperationProcess), "active").Inc()
	logger.Info("[Executor] Relationship active", "relationship_id", r.ID, "post_count", r.PostCountSnapshot)
	return nil
}

// fail lands r in Error with cause. The write and the notification use a
// context detached from cancellation so a shutdown still records the outcome.
func (x *Executor) fail(ctx context.Context, r *common.Relationship, attempts int, cause error) error {
	ctx = context.WithoutCancel(ctx)
	before := *r
	if err := r.Fail(cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	if err := x.store.UpdateRelationship(ctx, r); err != nil {
		return fmt.Errorf("failed to record failure of %s (%v): %w", r.Title(), cause, err)
	}
	x.recordUpdate(ctx, &before, r)
	x.notifyForum(ctx, r, notify.FailureMessage(r, cause), notify.EventFailed)

	metrics.RunsTotal.WithLabelValues(string(r.Kind), string(OperationProcess), "error").Inc()
	logger.Error("[Executor] Relationship failed", "relationship_id", r.ID, "attempts", attempts, "err", cause)
	return &TerminalError{RelationshipID: r.ID, Attempts: attempts, Err: cause}
}

// Undo reverts an active relationship from its undo record and returns it
// to pending. It never falls back to a fresh scan: without an unapplied
// record it fails with ErrUndoUnavailable.
func (x *Executor) Undo(ctx context.Context, id, actorID int64) error {
	err := x.locker.WithLease(ctx, leaselock.RelationshipKey(id), x.cfg.Lease, func(ctx context.Context) error {
		return x.undo(ctx, id, actorID)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		return fmt.Errorf("relationship %d is held by another worker: %w", id, err)
	}
	return err
}

func (x *Executor) undo(ctx context.Context, id, actorID int64) error {
	start := x.now()
	r, err := x.store.GetRelationship(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load relationship %d: %w", id, err)
	}
	if r.Status != common.StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrNotRunnable, r.Title(), r.Status)
	}

	rec, err := x.ledger.Pending(ctx, r.ID)
	if errors.Is(err, ledger.ErrNoPendingRecord) {
		return fmt.Errorf("%w: %s", ErrUndoUnavailable, r.Title())
	}
	if err != nil {
		return err
	}

	logger.Info("[Executor] Undoing relationship", "relationship_id", r.ID, "actor_id", actorID, "undo_id", rec.ID, "posts", len(rec.AffectedPostIDs))
	if _, err := x.rewrite.Revert(ctx, r, rec); err != nil {
		metrics.RunsTotal.WithLabelValues(string(r.Kind), string(OperationUndo), "error").Inc()
		return fmt.Errorf("failed to undo %s: %w", r.Title(), err)
	}
	if err := x.ledger.Consume(ctx, rec); err != nil {
		return err
	}

	before := *r
	if err := r.Undo(); err != nil {
		return err
	}
	if err := x.store.UpdateRelationship(ctx, r); err != nil {
		return fmt.Errorf("failed to mark %s pending: %w", r.Title(), err)
	}
	x.recordUpdate(ctx, &before, r, "actor_id", actorID)
	x.notifyForum(ctx, r, notify.RetirementMessage(r), notify.EventUndone)

	metrics.RunsTotal.WithLabelValues(string(r.Kind), string(OperationUndo), "pending").Inc()
	metrics.RunDuration.WithLabelValues(string(r.Kind), string(OperationUndo)).Observe(x.now().Sub(start).Seconds())
	return nil
}

func (x *Executor) notifyForum(ctx context.Context, r *common.Relationship, message string, event notify.Event) {
	if err := x.forum.Notify(ctx, r.ForumThreadRef, message, event); err != nil {
		logger.Warn("[Executor] Forum notification failed", "relationship_id", r.ID, "event", string(event), "err", err)
	}
}

// recordUpdate writes a *_update mod action when before and after differ.
// extra is a list of key/value pairs added to the details.
func (x *Executor) recordUpdate(ctx context.Context, before, after *common.Relationship, extra ...any) {
	desc := notify.Describe(before, after)
	if desc == "" {
		return
	}
	details := notify.Details(after, desc)
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			details[k] = extra[i+1]
		}
	}
	if err := x.modlog.Record(ctx, notify.ActionName(after.Kind, "update"), after.ID, details); err != nil {
		logger.Warn("[Executor] Failed to record mod action", "relationship_id", after.ID, "err", err)
	}
}
