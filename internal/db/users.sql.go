package db

import (
	"context"
)

const usersWithBlacklistedTag = `SELECT id, blacklisted_tags
FROM users
WHERE blacklisted_tags ILIKE '%' || $1 || '%' ESCAPE '\'
  AND id > $2
ORDER BY id
LIMIT $3
`

type UsersWithBlacklistedTagParams struct {
	Pattern string
	AfterID int64
	Limit   int32
}

func (q *Queries) UsersWithBlacklistedTag(ctx context.Context, arg UsersWithBlacklistedTagParams) ([]User, error) {
	rows, err := q.db.Query(ctx, usersWithBlacklistedTag, arg.Pattern, arg.AfterID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(&i.ID, &i.BlacklistedTags); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Written as is; the filter string is not re-validated.
const updateUserBlacklist = `UPDATE users
SET blacklisted_tags = $2
WHERE id = $1
`

type UpdateUserBlacklistParams struct {
	ID              int64
	BlacklistedTags string
}

func (q *Queries) UpdateUserBlacklist(ctx context.Context, arg UpdateUserBlacklistParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateUserBlacklist, arg.ID, arg.BlacklistedTags)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getArtistByName = `SELECT id, name FROM artists WHERE name = $1`

func (q *Queries) GetArtistByName(ctx context.Context, name string) (Artist, error) {
	row := q.db.QueryRow(ctx, getArtistByName, name)
	var i Artist
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

const renameArtist = `UPDATE artists SET name = $2 WHERE id = $1`

type RenameArtistParams struct {
	ID   int64
	Name string
}

func (q *Queries) RenameArtist(ctx context.Context, arg RenameArtistParams) (int64, error) {
	tag, err := q.db.Exec(ctx, renameArtist, arg.ID, arg.Name)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
