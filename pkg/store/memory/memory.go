// Package memory provides a mutex guarded in-memory implementation of
// store.Store used by the engine tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
	"github.com/OFFIS-RIT/tagrel/pkg/tagquery"
)

type state struct {
	relationships map[int64]common.Relationship
	tags          map[string]common.Tag
	posts         map[int64]common.Post
	users         map[int64]common.User
	artists       map[int64]common.Artist
	followers     map[string]map[int64]struct{}
	undos         map[int64]common.UndoRecord
	modActions    []store.ModAction

	nextRelationshipID int64
	nextTagID          int64
	nextArtistID       int64
	nextUndoID         int64
}

// Store is safe for concurrent use. Values are copied in and out so callers
// never share memory with the store.
type Store struct {
	mu    sync.RWMutex
	state state
	now   func() time.Time
}

func New() *Store {
	return &Store{
		state: state{
			relationships: make(map[int64]common.Relationship),
			tags:          make(map[string]common.Tag),
			posts:         make(map[int64]common.Post),
			users:         make(map[int64]common.User),
			artists:       make(map[int64]common.Artist),
			followers:     make(map[string]map[int64]struct{}),
			undos:         make(map[int64]common.UndoRecord),
		},
		now: time.Now,
	}
}

var _ store.Store = (*Store)(nil)

// Seeding helpers

func (s *Store) PutTag(t common.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		s.state.nextTagID++
		t.ID = s.state.nextTagID
	}
	s.state.tags[t.Name] = t
}

func (s *Store) PutPost(p common.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.posts[p.ID] = p
}

func (s *Store) PutUser(u common.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

func (s *Store) PutArtist(name string) common.Artist {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextArtistID++
	a := common.Artist{ID: s.state.nextArtistID, Name: name}
	s.state.artists[a.ID] = a
	return a
}

func (s *Store) Follow(tag string, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.state.followers[tag]
	if !ok {
		set = make(map[int64]struct{})
		s.state.followers[tag] = set
	}
	set[userID] = struct{}{}
}

func (s *Store) Post(id int64) common.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.posts[id]
}

func (s *Store) User(id int64) common.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.users[id]
}

func (s *Store) ModActions() []store.ModAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.modActions)
}

// Relationships

func (s *Store) GetRelationship(ctx context.Context, id int64) (*common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.relationships[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) CreateRelationship(ctx context.Context, r *common.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextRelationshipID++
	now := s.now()
	r.ID = s.state.nextRelationshipID
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	s.state.relationships[r.ID] = *r
	return nil
}

func (s *Store) UpdateRelationship(ctx context.Context, r *common.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.state.relationships[r.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != r.Version {
		return store.ErrConflict
	}
	r.Version++
	r.UpdatedAt = s.now()
	s.state.relationships[r.ID] = *r
	return nil
}

func (s *Store) ListRelationships(ctx context.Context, filter store.RelationshipFilter) ([]*common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*common.Relationship, 0)
	for _, r := range s.state.relationships {
		if !filter.Matches(&r) {
			continue
		}
		out = append(out, &r)
	}
	slices.SortFunc(out, func(a, b *common.Relationship) int {
		return int(a.ID - b.ID)
	})
	return out, nil
}

// Tags

func (s *Store) GetTag(ctx context.Context, name string) (*common.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tags[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) FindOrCreateTag(ctx context.Context, name string) (*common.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.tags[name]
	if !ok {
		s.state.nextTagID++
		t = common.Tag{ID: s.state.nextTagID, Name: name, Category: common.CategoryGeneral}
		s.state.tags[name] = t
	}
	return &t, nil
}

func (s *Store) UpdateTagCategory(ctx context.Context, name string, category common.Category, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.tags[name]
	if !ok {
		return store.ErrNotFound
	}
	t.Category = category
	s.state.tags[name] = t
	return nil
}

func (s *Store) FixPostCount(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, p := range s.state.posts {
		if tagquery.HasTag(p.TagString, name) {
			count++
		}
	}
	t, ok := s.state.tags[name]
	if !ok {
		return count, nil
	}
	t.PostCount = count
	s.state.tags[name] = t
	return count, nil
}

func (s *Store) FixFollowerCount(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := int64(len(s.state.followers[name]))
	if t, ok := s.state.tags[name]; ok {
		t.FollowerCount = count
		s.state.tags[name] = t
	}
	return count, nil
}

func (s *Store) ListFollowers(ctx context.Context, name string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.state.followers[name]))
	for id := range s.state.followers[name] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) MoveFollowers(ctx context.Context, from, to string, userIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.state.followers[from]
	if len(src) == 0 {
		return nil
	}
	dst, ok := s.state.followers[to]
	if !ok {
		dst = make(map[int64]struct{})
		s.state.followers[to] = dst
	}
	move := func(id int64) {
		if _, ok := src[id]; !ok {
			return
		}
		delete(src, id)
		dst[id] = struct{}{}
	}
	if userIDs == nil {
		for id := range src {
			move(id)
		}
		return nil
	}
	for _, id := range userIDs {
		move(id)
	}
	return nil
}

func (s *Store) CopyFollowers(ctx context.Context, from, to string, userIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.state.followers[from]
	dst, ok := s.state.followers[to]
	if !ok {
		dst = make(map[int64]struct{})
		s.state.followers[to] = dst
	}
	for _, id := range userIDs {
		if _, ok := src[id]; ok {
			dst[id] = struct{}{}
		}
	}
	return nil
}

// Posts

func (s *Store) PostsWithLockedTag(ctx context.Context, name string, afterID int64, limit int) ([]common.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(name)
	out := make([]common.Post, 0)
	for _, p := range s.state.posts {
		if p.ID <= afterID || !strings.Contains(strings.ToLower(p.LockedTags), needle) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b common.Post) int { return int(a.ID - b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateLockedTags(ctx context.Context, updates map[int64]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range updates {
		if _, ok := s.state.posts[id]; !ok {
			return store.ErrNotFound
		}
	}
	for id, locked := range updates {
		p := s.state.posts[id]
		p.LockedTags = locked
		s.state.posts[id] = p
	}
	return nil
}

func (s *Store) PostIDsWithTag(ctx context.Context, name string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0)
	for _, p := range s.state.posts {
		if tagquery.HasTag(p.TagString, name) {
			out = append(out, p.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) GetPosts(ctx context.Context, ids []int64) ([]common.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.state.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) EditTags(ctx context.Context, edits []store.TagEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edits {
		if _, ok := s.state.posts[e.PostID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, e := range edits {
		p := s.state.posts[e.PostID]
		p.TagString = tagquery.ApplyDiff(p.TagString, e.Add, e.Remove)
		s.state.posts[e.PostID] = p
	}
	return nil
}

// Users

func (s *Store) UsersWithBlacklistedTag(ctx context.Context, name string, afterID int64, limit int) ([]common.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(name)
	out := make([]common.User, 0)
	for _, u := range s.state.users {
		if u.ID <= afterID || !strings.Contains(strings.ToLower(u.BlacklistedTags), needle) {
			continue
		}
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b common.User) int { return int(a.ID - b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateBlacklists(ctx context.Context, updates map[int64]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, blacklist := range updates {
		u, ok := s.state.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.BlacklistedTags = blacklist
		s.state.users[id] = u
	}
	return nil
}

// Artists

func (s *Store) FindArtist(ctx context.Context, name string) (*common.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.state.artists {
		if a.Name == name {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) RenameArtist(ctx context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.artists[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Name = name
	s.state.artists[id] = a
	return nil
}

// Undo records

func (s *Store) CreateUndo(ctx context.Context, rec *common.UndoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertUndo(rec)
	return nil
}

func (s *Store) ReplaceUndo(ctx context.Context, oldID int64, rec *common.UndoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.state.undos[oldID]
	if !ok || old.Applied {
		return store.ErrConflict
	}
	delete(s.state.undos, oldID)
	s.insertUndo(rec)
	return nil
}

func (s *Store) insertUndo(rec *common.UndoRecord) {
	s.state.nextUndoID++
	rec.ID = s.state.nextUndoID
	rec.CreatedAt = s.now()
	stored := *rec
	stored.AffectedPostIDs = slices.Clone(rec.AffectedPostIDs)
	stored.FollowerUserIDs = slices.Clone(rec.FollowerUserIDs)
	stored.SharedFollowerUserIDs = slices.Clone(rec.SharedFollowerUserIDs)
	s.state.undos[rec.ID] = stored
}

func (s *Store) PendingUndo(ctx context.Context, relationshipID int64) (*common.UndoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.state.undos {
		if u.RelationshipID == relationshipID && !u.Applied {
			u.AffectedPostIDs = slices.Clone(u.AffectedPostIDs)
			u.FollowerUserIDs = slices.Clone(u.FollowerUserIDs)
			u.SharedFollowerUserIDs = slices.Clone(u.SharedFollowerUserIDs)
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) MarkUndoApplied(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.state.undos[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Applied = true
	s.state.undos[id] = u
	return nil
}

// Mod actions

func (s *Store) CreateModAction(ctx context.Context, action store.ModAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.modActions = append(s.state.modActions, action)
	return nil
}
