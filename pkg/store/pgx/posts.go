package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/internal/db"
	"github.com/OFFIS-RIT/tagrel/internal/util"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
	"github.com/OFFIS-RIT/tagrel/pkg/tagquery"
)

func toPosts(rows []db.Post) []common.Post {
	out := make([]common.Post, len(rows))
	for i, row := range rows {
		out[i] = common.Post{ID: row.ID, TagString: row.TagString, LockedTags: row.LockedTags}
	}
	return out
}

func (s *Store) PostsWithLockedTag(ctx context.Context, name string, afterID int64, limit int) ([]common.Post, error) {
	rows, err := s.queries().PostsWithLockedTag(ctx, db.PostsWithLockedTagParams{
		Pattern: escapeLike(name),
		AfterID: afterID,
		Limit:   int32(limit),
	})
	if err != nil {
		return nil, err
	}
	return toPosts(rows), nil
}

func (s *Store) UpdateLockedTags(ctx context.Context, updates map[int64]string) error {
	return s.inTx(ctx, func(qtx *db.Queries) error {
		for id, locked := range updates {
			n, err := qtx.UpdatePostLockedTags(ctx, db.UpdatePostLockedTagsParams{
				ID:         id,
				LockedTags: util.SanitizePostgresText(locked),
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("post %d: %w", id, store.ErrNotFound)
			}
		}
		return nil
	})
}

func (s *Store) PostIDsWithTag(ctx context.Context, name string) ([]int64, error) {
	return s.queries().PostIDsWithTag(ctx, name)
}

func (s *Store) GetPosts(ctx context.Context, ids []int64) ([]common.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.queries().GetPostsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return toPosts(rows), nil
}

// EditTags locks the affected posts, applies the diffs and writes the new
// tag strings in one transaction.
func (s *Store) EditTags(ctx context.Context, edits []store.TagEdit) error {
	if len(edits) == 0 {
		return nil
	}
	return s.inTx(ctx, func(qtx *db.Queries) error {
		return store.ChunkRange(len(edits), s.editChunk, func(start, end int) error {
			chunk := edits[start:end]
			ids := make([]int64, len(chunk))
			for i, e := range chunk {
				ids[i] = e.PostID
			}
			rows, err := qtx.LockPostsByIDs(ctx, ids)
			if err != nil {
				return err
			}
			current := make(map[int64]string, len(rows))
			for _, row := range rows {
				current[row.ID] = row.TagString
			}
			for _, e := range chunk {
				tagString, ok := current[e.PostID]
				if !ok {
					return fmt.Errorf("post %d: %w", e.PostID, store.ErrNotFound)
				}
				next := tagquery.ApplyDiff(tagString, e.Add, e.Remove)
				if next == tagString {
					continue
				}
				if err := qtx.UpdatePostTagString(ctx, db.UpdatePostTagStringParams{ID: e.PostID, TagString: next}); err != nil {
					return err
				}
				current[e.PostID] = next
			}
			return nil
		})
	})
}

func (s *Store) UsersWithBlacklistedTag(ctx context.Context, name string, afterID int64, limit int) ([]common.User, error) {
	rows, err := s.queries().UsersWithBlacklistedTag(ctx, db.UsersWithBlacklistedTagParams{
		Pattern: escapeLike(name),
		AfterID: afterID,
		Limit:   int32(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]common.User, len(rows))
	for i, row := range rows {
		out[i] = common.User{ID: row.ID, BlacklistedTags: row.BlacklistedTags}
	}
	return out, nil
}

func (s *Store) UpdateBlacklists(ctx context.Context, updates map[int64]string) error {
	return s.inTx(ctx, func(qtx *db.Queries) error {
		for id, blacklist := range updates {
			n, err := qtx.UpdateUserBlacklist(ctx, db.UpdateUserBlacklistParams{
				ID:              id,
				BlacklistedTags: util.SanitizePostgresText(blacklist),
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
			}
		}
		return nil
	})
}
