package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/internal/db"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
)

func toTag(row db.Tag) *common.Tag {
	return &common.Tag{
		ID:            row.ID,
		Name:          row.Name,
		Category:      common.Category(row.Category),
		PostCount:     row.PostCount,
		FollowerCount: row.FollowerCount,
		IsLocked:      row.IsLocked,
	}
}

func (s *Store) GetTag(ctx context.Context, name string) (*common.Tag, error) {
	row, err := s.queries().GetTagByName(ctx, name)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("tag %s", name))
	}
	return toTag(row), nil
}

// FindOrCreateTag coalesces concurrent lookups of the same name.
func (s *Store) FindOrCreateTag(ctx context.Context, name string) (*common.Tag, error) {
	v, err, _ := s.tagLookup.Do(name, func() (any, error) {
		return s.queries().UpsertTag(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return toTag(v.(db.Tag)), nil
}

func (s *Store) UpdateTagCategory(ctx context.Context, name string, category common.Category, reason string) error {
	_, err := s.queries().UpdateTagCategory(ctx, db.UpdateTagCategoryParams{
		Name:     name,
		Category: int32(category),
		Reason:   reason,
	})
	return notFound(err, fmt.Sprintf("tag %s", name))
}

func (s *Store) FixPostCount(ctx context.Context, name string) (int64, error) {
	count, err := s.queries().FixTagPostCount(ctx, name)
	if err != nil {
		return 0, notFound(err, fmt.Sprintf("tag %s", name))
	}
	return count, nil
}

func (s *Store) FixFollowerCount(ctx context.Context, name string) (int64, error) {
	count, err := s.queries().FixTagFollowerCount(ctx, name)
	if err != nil {
		return 0, notFound(err, fmt.Sprintf("tag %s", name))
	}
	return count, nil
}

func (s *Store) ListFollowers(ctx context.Context, name string) ([]int64, error) {
	return s.queries().ListTagFollowers(ctx, name)
}

func (s *Store) MoveFollowers(ctx context.Context, from, to string, userIDs []int64) error {
	return s.inTx(ctx, func(qtx *db.Queries) error {
		return qtx.MoveTagFollowers(ctx, db.MoveTagFollowersParams{
			FromName: from,
			ToName:   to,
			UserIds:  userIDs,
		})
	})
}

func (s *Store) CopyFollowers(ctx context.Context, from, to string, userIDs []int64) error {
	return s.queries().CopyTagFollowers(ctx, db.CopyTagFollowersParams{
		FromName: from,
		ToName:   to,
		UserIds:  userIDs,
	})
}

func (s *Store) FindArtist(ctx context.Context, name string) (*common.Artist, error) {
	row, err := s.queries().GetArtistByName(ctx, name)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("artist %s", name))
	}
	return &common.Artist{ID: row.ID, Name: row.Name}, nil
}

func (s *Store) RenameArtist(ctx context.Context, id int64, name string) error {
	n, err := s.queries().RenameArtist(ctx, db.RenameArtistParams{ID: id, Name: name})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("artist %d: %w", id, store.ErrNotFound)
	}
	return nil
}
