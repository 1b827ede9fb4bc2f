package db

import (
	"context"
)

const tagColumns = `id, name, category, post_count, follower_count, is_locked`

func scanTag(row interface{ Scan(...any) error }) (Tag, error) {
	var i Tag
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Category,
		&i.PostCount,
		&i.FollowerCount,
		&i.IsLocked,
	)
	return i, err
}

const getTagByName = `SELECT ` + tagColumns + `
FROM tags
WHERE name = $1
`

func (q *Queries) GetTagByName(ctx context.Context, name string) (Tag, error) {
	row := q.db.QueryRow(ctx, getTagByName, name)
	return scanTag(row)
}

// The no-op update makes RETURNING yield the existing row on conflict.
const upsertTag = `INSERT INTO tags (name)
VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING ` + tagColumns + `
`

func (q *Queries) UpsertTag(ctx context.Context, name string) (Tag, error) {
	row := q.db.QueryRow(ctx, upsertTag, name)
	return scanTag(row)
}

const updateTagCategory = `WITH old AS (
    SELECT id, category FROM tags WHERE name = $1 FOR UPDATE
), changed AS (
    UPDATE tags SET category = $2, updated_at = now()
    FROM old
    WHERE tags.id = old.id
    RETURNING old.category AS old_category
)
INSERT INTO tag_category_changes (tag_name, old_category, new_category, reason)
SELECT $1, old_category, $2, $3 FROM changed
RETURNING id
`

type UpdateTagCategoryParams struct {
	Name     string
	Category int32
	Reason   string
}

func (q *Queries) UpdateTagCategory(ctx context.Context, arg UpdateTagCategoryParams) (int64, error) {
	row := q.db.QueryRow(ctx, updateTagCategory, arg.Name, arg.Category, arg.Reason)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const fixTagPostCount = `UPDATE tags
SET post_count = (
        SELECT count(*) FROM posts
        WHERE string_to_array(posts.tag_string, ' ') @> ARRAY[$1::text]
    ),
    updated_at = now()
WHERE name = $1
RETURNING post_count
`

func (q *Queries) FixTagPostCount(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRow(ctx, fixTagPostCount, name)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const fixTagFollowerCount = `UPDATE tags
SET follower_count = (SELECT count(*) FROM tag_followers WHERE tag_name = $1),
    updated_at = now()
WHERE name = $1
RETURNING follower_count
`

func (q *Queries) FixTagFollowerCount(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRow(ctx, fixTagFollowerCount, name)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listTagFollowers = `SELECT user_id FROM tag_followers
WHERE tag_name = $1
ORDER BY user_id
`

func (q *Queries) ListTagFollowers(ctx context.Context, tagName string) ([]int64, error) {
	rows, err := q.db.Query(ctx, listTagFollowers, tagName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		items = append(items, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// copyTagFollowers copies subscriptions of $1 to $2. A NULL user id list
// selects every follower.
const copyTagFollowers = `INSERT INTO tag_followers (tag_name, user_id)
SELECT $2, user_id FROM tag_followers
WHERE tag_name = $1
  AND ($3::bigint[] IS NULL OR user_id = ANY($3::bigint[]))
ON CONFLICT (tag_name, user_id) DO NOTHING
`

const deleteTagFollowers = `DELETE FROM tag_followers
WHERE tag_name = $1
  AND ($2::bigint[] IS NULL OR user_id = ANY($2::bigint[]))
`

type MoveTagFollowersParams struct {
	FromName string
	ToName   string
	UserIds  []int64
}

type CopyTagFollowersParams struct {
	FromName string
	ToName   string
	UserIds  []int64
}

func (q *Queries) CopyTagFollowers(ctx context.Context, arg CopyTagFollowersParams) error {
	_, err := q.db.Exec(ctx, copyTagFollowers, arg.FromName, arg.ToName, arg.UserIds)
	return err
}

// MoveTagFollowers must run inside a transaction.
func (q *Queries) MoveTagFollowers(ctx context.Context, arg MoveTagFollowersParams) error {
	if _, err := q.db.Exec(ctx, copyTagFollowers, arg.FromName, arg.ToName, arg.UserIds); err != nil {
		return err
	}
	_, err := q.db.Exec(ctx, deleteTagFollowers, arg.FromName, arg.UserIds)
	return err
}
