package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/internal/db"
	"github.com/OFFIS-RIT/tagrel/internal/util"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

func toRelationship(row db.TagRelationship) *common.Relationship {
	return &common.Relationship{
		ID:                row.ID,
		Kind:              common.Kind(row.Kind),
		Antecedent:        row.AntecedentName,
		Consequent:        row.ConsequentName,
		Status:            common.Status(row.Status),
		ErrorMessage:      row.ErrorMessage,
		CreatorID:         row.CreatorID,
		ApproverID:        row.ApproverID,
		ForumThreadRef:    row.ForumThreadRef,
		PostCountSnapshot: row.PostCount,
		Version:           row.Version,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

func (s *Store) GetRelationship(ctx context.Context, id int64) (*common.Relationship, error) {
	row, err := s.queries().GetTagRelationship(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("tag relationship %d", id))
	}
	return toRelationship(row), nil
}

func (s *Store) CreateRelationship(ctx context.Context, r *common.Relationship) error {
	row, err := s.queries().CreateTagRelationship(ctx, db.CreateTagRelationshipParams{
		Kind:           string(r.Kind),
		AntecedentName: r.Antecedent,
		ConsequentName: r.Consequent,
		Status:         string(r.Status),
		ErrorMessage:   util.SanitizePostgresText(r.ErrorMessage),
		CreatorID:      r.CreatorID,
		ApproverID:     r.ApproverID,
		ForumThreadRef: r.ForumThreadRef,
		PostCount:      r.PostCountSnapshot,
	})
	if err != nil {
		return err
	}
	*r = *toRelationship(row)
	return nil
}

func (s *Store) UpdateRelationship(ctx context.Context, r *common.Relationship) error {
	q := s.queries()
	row, err := q.UpdateTagRelationship(ctx, db.UpdateTagRelationshipParams{
		ID:             r.ID,
		Version:        r.Version,
		AntecedentName: r.Antecedent,
		ConsequentName: r.Consequent,
		Status:         string(r.Status),
		ErrorMessage:   util.SanitizePostgresText(r.ErrorMessage),
		ApproverID:     r.ApproverID,
		ForumThreadRef: r.ForumThreadRef,
		PostCount:      r.PostCountSnapshot,
	})
	if errors.Is(err, pgxv5.ErrNoRows) {
		exists, existsErr := q.TagRelationshipExists(ctx, r.ID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return fmt.Errorf("tag relationship %d: %w", r.ID, store.ErrNotFound)
		}
		return fmt.Errorf("tag relationship %d at version %d: %w", r.ID, r.Version, store.ErrConflict)
	}
	if err != nil {
		return err
	}
	r.Version = row.Version
	r.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) ListRelationships(ctx context.Context, filter store.RelationshipFilter) ([]*common.Relationship, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}
	rows, err := s.queries().ListTagRelationships(ctx, db.ListTagRelationshipsParams{
		Kind:           string(filter.Kind),
		AntecedentName: filter.Antecedent,
		ConsequentName: filter.Consequent,
		Statuses:       statuses,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*common.Relationship, len(rows))
	for i, row := range rows {
		out[i] = toRelationship(row)
	}
	return out, nil
}

func (s *Store) CreateModAction(ctx context.Context, action store.ModAction) error {
	details, err := json.Marshal(action.Details)
	if err != nil {
		return fmt.Errorf("failed to encode mod action details: %w", err)
	}
	_, err = s.queries().CreateModAction(ctx, db.CreateModActionParams{
		Action:    action.Action,
		SubjectID: action.SubjectID,
		Details:   details,
	})
	return err
}
