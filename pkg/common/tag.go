package common

import "time"

// Category is the numeric tag category as stored on tags.
type Category int

const (
	CategoryGeneral     Category = 0
	CategoryArtist      Category = 1
	CategoryContributor Category = 2
	CategoryCopyright   Category = 3
	CategoryCharacter   Category = 4
	CategorySpecies     Category = 5
	CategoryInvalid     Category = 6
	CategoryMeta        Category = 7
	CategoryLore        Category = 8
)

var categoryNames = map[Category]string{
	CategoryGeneral:     "general",
	CategoryArtist:      "artist",
	CategoryContributor: "contributor",
	CategoryCopyright:   "copyright",
	CategoryCharacter:   "character",
	CategorySpecies:     "species",
	CategoryInvalid:     "invalid",
	CategoryMeta:        "meta",
	CategoryLore:        "lore",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// CategoryByName resolves "artist" to CategoryArtist.
func CategoryByName(name string) (Category, bool) {
	for c, n := range categoryNames {
		if n == name {
			return c, true
		}
	}
	return CategoryGeneral, false
}

type Tag struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Category      Category `json:"category"`
	PostCount     int64    `json:"post_count"`
	FollowerCount int64    `json:"follower_count"`
	IsLocked      bool     `json:"is_locked"`
}

// Post is the slice of a content item the engine reads and writes.
type Post struct {
	ID         int64  `json:"id"`
	TagString  string `json:"tag_string"`
	LockedTags string `json:"locked_tags"`
}

// User carries the saved filter string (blacklist) of a user.
type User struct {
	ID              int64  `json:"id"`
	BlacklistedTags string `json:"blacklisted_tags"`
}

type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UndoRecord is the ledger entry written before a forward rewrite mutates
// live tags. The id lists never change after insert. SharedFollowerUserIDs
// holds the followers of the antecedent that already followed the consequent.
type UndoRecord struct {
	ID                    int64     `json:"id"`
	RelationshipID        int64     `json:"relationship_id"`
	AffectedPostIDs       []int64   `json:"undo_data"`
	FollowerUserIDs       []int64   `json:"follower_user_ids"`
	SharedFollowerUserIDs []int64   `json:"shared_follower_user_ids,omitempty"`
	Applied               bool      `json:"applied"`
	CreatedAt             time.Time `json:"created_at"`
}
