package db

import (
	"time"
)

type Tag struct {
	ID            int64
	Name          string
	Category      int32
	PostCount     int64
	FollowerCount int64
	IsLocked      bool
}

type Post struct {
	ID         int64
	TagString  string
	LockedTags string
}

type User struct {
	ID              int64
	BlacklistedTags string
}

type Artist struct {
	ID   int64
	Name string
}

type TagRelationship struct {
	ID             int64
	Kind           string
	AntecedentName string
	ConsequentName string
	Status         string
	ErrorMessage   string
	CreatorID      int64
	ApproverID     *int64
	ForumThreadRef string
	PostCount      int64
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type TagRelUndo struct {
	ID                    int64
	RelationshipID        int64
	UndoData              []int64
	FollowerUserIds       []int64
	SharedFollowerUserIds []int64
	Applied               bool
	CreatedAt             time.Time
}
