package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/tagrel/internal/util"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/ledger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds a path-style client from the AWS_* environment. It
// returns nil when no bucket is configured or the config cannot be loaded.
func NewS3Client(ctx context.Context) *s3.Client {
	if util.GetEnv("AWS_BUCKET") == "" {
		return nil
	}
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// UndoArchive stores a JSON copy of every undo record so the affected ids
// survive even if the database row is lost.
type UndoArchive struct {
	client objectAPI
	bucket string
}

var _ ledger.Archiver = (*UndoArchive)(nil)

func NewUndoArchive(client objectAPI, bucket string) *UndoArchive {
	return &UndoArchive{client: client, bucket: bucket}
}

func UndoPrefix(relationshipID int64) string {
	return fmt.Sprintf("tag-relationships/%d/", relationshipID)
}

func UndoKey(rec *common.UndoRecord) string {
	return fmt.Sprintf("%sundo-%d.json", UndoPrefix(rec.RelationshipID), rec.ID)
}

func (a *UndoArchive) ArchiveUndo(ctx context.Context, rec *common.UndoRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(UndoKey(rec)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload undo snapshot to S3: %w", err)
	}
	return nil
}

// GetUndo reads back an archived record by key.
func (a *UndoArchive) GetUndo(ctx context.Context, key string) (*common.UndoRecord, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get undo snapshot from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read undo snapshot: %w", err)
	}
	var rec common.UndoRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode undo snapshot %s: %w", key, err)
	}
	return &rec, nil
}

// ListUndo returns the archived snapshot keys of one relationship.
func (a *UndoArchive) ListUndo(ctx context.Context, relationshipID int64) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(UndoPrefix(relationshipID)),
	}

	for {
		listOutput, err := a.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list undo snapshots of %d: %w", relationshipID, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return keys, nil
}
