package db

import (
	"context"
)

func collectPosts(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
	Close()
}) ([]Post, error) {
	defer rows.Close()
	var items []Post
	for rows.Next() {
		var i Post
		if err := rows.Scan(&i.ID, &i.TagString, &i.LockedTags); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Substring match on an escaped pattern; the caller filters false positives
// by token.
const postsWithLockedTag = `SELECT id, tag_string, locked_tags
FROM posts
WHERE locked_tags ILIKE '%' || $1 || '%' ESCAPE '\'
  AND id > $2
ORDER BY id
LIMIT $3
`

type PostsWithLockedTagParams struct {
	Pattern string
	AfterID int64
	Limit   int32
}

func (q *Queries) PostsWithLockedTag(ctx context.Context, arg PostsWithLockedTagParams) ([]Post, error) {
	rows, err := q.db.Query(ctx, postsWithLockedTag, arg.Pattern, arg.AfterID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

const updatePostLockedTags = `UPDATE posts
SET locked_tags = $2, updated_at = now()
WHERE id = $1
`

type UpdatePostLockedTagsParams struct {
	ID         int64
	LockedTags string
}

func (q *Queries) UpdatePostLockedTags(ctx context.Context, arg UpdatePostLockedTagsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updatePostLockedTags, arg.ID, arg.LockedTags)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const postIDsWithTag = `SELECT id FROM posts
WHERE string_to_array(tag_string, ' ') @> ARRAY[$1::text]
ORDER BY id
`

func (q *Queries) PostIDsWithTag(ctx context.Context, name string) ([]int64, error) {
	rows, err := q.db.Query(ctx, postIDsWithTag, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPostsByIDs = `SELECT id, tag_string, locked_tags
FROM posts
WHERE id = ANY($1::bigint[])
ORDER BY id
`

func (q *Queries) GetPostsByIDs(ctx context.Context, ids []int64) ([]Post, error) {
	rows, err := q.db.Query(ctx, getPostsByIDs, ids)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

const lockPostsByIDs = `SELECT id, tag_string, locked_tags
FROM posts
WHERE id = ANY($1::bigint[])
ORDER BY id
FOR UPDATE
`

// LockPostsByIDs selects the posts row-locked for a tag edit.
func (q *Queries) LockPostsByIDs(ctx context.Context, ids []int64) ([]Post, error) {
	rows, err := q.db.Query(ctx, lockPostsByIDs, ids)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

const updatePostTagString = `UPDATE posts
SET tag_string = $2, updated_at = now()
WHERE id = $1
`

type UpdatePostTagStringParams struct {
	ID        int64
	TagString string
}

func (q *Queries) UpdatePostTagString(ctx context.Context, arg UpdatePostTagStringParams) error {
	_, err := q.db.Exec(ctx, updatePostTagString, arg.ID, arg.TagString)
	return err
}
