package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an optimistic version check misses.
	ErrConflict = errors.New("concurrent update conflict")
)

// RelationshipFilter selects relationships. Zero fields match everything.
type RelationshipFilter struct {
	Kind       common.Kind
	Antecedent string
	Consequent string
	Statuses   []common.Status
}

// RelationshipStore persists alias and implication records. Updates are
// versioned: UpdateRelationship only succeeds when the stored version still
// equals r.Version and bumps r.Version on success.
type RelationshipStore interface {
	GetRelationship(ctx context.Context, id int64) (*common.Relationship, error)
	CreateRelationship(ctx context.Context, r *common.Relationship) error
	UpdateRelationship(ctx context.Context, r *common.Relationship) error
	ListRelationships(ctx context.Context, filter RelationshipFilter) ([]*common.Relationship, error)
}

type TagStore interface {
	GetTag(ctx context.Context, name string) (*common.Tag, error)
	FindOrCreateTag(ctx context.Context, name string) (*common.Tag, error)
	UpdateTagCategory(ctx context.Context, name string, category common.Category, reason string) error
	// FixPostCount recomputes the usage count from actual post membership.
	FixPostCount(ctx context.Context, name string) (int64, error)
	// FixFollowerCount recomputes the follower count from subscriptions.
	FixFollowerCount(ctx context.Context, name string) (int64, error)
	ListFollowers(ctx context.Context, name string) ([]int64, error)
	// MoveFollowers repoints subscriptions of from to to. A nil userIDs moves
	// every follower. Users already following to are not duplicated.
	MoveFollowers(ctx context.Context, from, to string, userIDs []int64) error
	// CopyFollowers subscribes the listed followers of from to to as well.
	CopyFollowers(ctx context.Context, from, to string, userIDs []int64) error
}

// TagEdit adds and removes live tags on one post through the normal tag
// edit path.
type TagEdit struct {
	PostID int64
	Add    []string
	Remove []string
}

type PostStore interface {
	// PostsWithLockedTag returns up to limit posts with id > afterID whose
	// locked tags contain name as a case-insensitive substring, ordered by id.
	PostsWithLockedTag(ctx context.Context, name string, afterID int64, limit int) ([]common.Post, error)
	UpdateLockedTags(ctx context.Context, updates map[int64]string) error
	PostIDsWithTag(ctx context.Context, name string) ([]int64, error)
	GetPosts(ctx context.Context, ids []int64) ([]common.Post, error)
	// EditTags applies all edits as one unit.
	EditTags(ctx context.Context, edits []TagEdit) error
}

type UserStore interface {
	// UsersWithBlacklistedTag mirrors PostsWithLockedTag for saved filters.
	UsersWithBlacklistedTag(ctx context.Context, name string, afterID int64, limit int) ([]common.User, error)
	// UpdateBlacklists overwrites filter strings without validation.
	UpdateBlacklists(ctx context.Context, updates map[int64]string) error
}

type ArtistStore interface {
	FindArtist(ctx context.Context, name string) (*common.Artist, error)
	RenameArtist(ctx context.Context, id int64, name string) error
}

type UndoStore interface {
	CreateUndo(ctx context.Context, rec *common.UndoRecord) error
	// ReplaceUndo drops the unconsumed record oldID and inserts rec in its
	// place as one unit.
	ReplaceUndo(ctx context.Context, oldID int64, rec *common.UndoRecord) error
	// PendingUndo returns the non-applied record of a relationship.
	PendingUndo(ctx context.Context, relationshipID int64) (*common.UndoRecord, error)
	MarkUndoApplied(ctx context.Context, id int64) error
}

// ModAction is one audit log entry.
type ModAction struct {
	Action    string         `json:"action"`
	SubjectID int64          `json:"subject_id"`
	Details   map[string]any `json:"details"`
}

type ModActionStore interface {
	CreateModAction(ctx context.Context, action ModAction) error
}

// Store bundles every collaborator the engine reads and writes.
type Store interface {
	RelationshipStore
	TagStore
	PostStore
	UserStore
	ArtistStore
	UndoStore
	ModActionStore
}
