// Package notify carries relationship state changes to the discussion forum
// and the moderation audit log.
package notify

import (
	"context"

	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
)

type Event string

const (
	EventApproved Event = "APPROVED"
	EventFailed   Event = "FAILED"
	EventRejected Event = "REJECTED"
	EventUndone   Event = "UNDONE"
)

// ForumNotifier posts to the discussion thread of a request. Calls are fire
// and forget from the engine's point of view; an error is logged only.
type ForumNotifier interface {
	Notify(ctx context.Context, threadRef, message string, event Event) error
}

// ModLog records create and update events of relationships.
type ModLog interface {
	Record(ctx context.Context, eventKind string, relationshipID int64, details map[string]any) error
}

// LogNotifier writes forum updates to the application log. It is used when
// no forum transport is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, threadRef, message string, event Event) error {
	logger.Info("[Forum] "+message, "thread", threadRef, "event", string(event))
	return nil
}

// StoreModLog persists mod actions through the relationship store.
type StoreModLog struct {
	store store.ModActionStore
}

func NewStoreModLog(s store.ModActionStore) *StoreModLog {
	return &StoreModLog{store: s}
}

func (m *StoreModLog) Record(ctx context.Context, eventKind string, relationshipID int64, details map[string]any) error {
	return m.store.CreateModAction(ctx, store.ModAction{
		Action:    eventKind,
		SubjectID: relationshipID,
		Details:   details,
	})
}
