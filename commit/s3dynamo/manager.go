// Package s3dynamo implements commit.Manager against S3 plus DynamoDB:
// each commit writes the recovery record to a fresh, version-numbered S3
// key and then advances a "CURRENT version" pointer in DynamoDB with a
// conditional write, giving multiple writer processes the same atomic
// compare-and-swap the in-process Coordinator mutex gives a single
// process.
package s3dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/flogdb/flog/blobstore"
)

// DDBClient is the subset of the DynamoDB client this package needs.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentCommit is returned when a competing writer has already
// advanced the CURRENT version pointer past the version this call tried
// to install; the caller should re-read and retry.
var ErrConcurrentCommit = errors.New("s3dynamo: concurrent commit detected")

// Manager implements commit.Manager by pairing an S3-backed
// blobstore.BlobStore with a DynamoDB table used purely as an atomic
// version counter.
type Manager struct {
	store     blobstore.BlobStore
	ddb       DDBClient
	tableName string
	logID     string // partition key; identifies this log among others sharing the table
}

// New creates a Manager. store should be an s3.Store (or any
// blobstore.BlobStore) scoped to this log's commit prefix; tableName is
// the DynamoDB table holding the version pointer; logID is the
// partition-key value distinguishing this log from others sharing the
// table.
func New(store blobstore.BlobStore, ddb DDBClient, tableName, logID string) *Manager {
	return &Manager{store: store, ddb: ddb, tableName: tableName, logID: logID}
}

// Commit writes metadata to a new version-numbered key, then advances the
// CURRENT pointer with a conditional put. A losing race surfaces as
// ErrConcurrentCommit; the Coordinator serializes commits in-process, so
// this path only matters when multiple processes write the same log,
// which is outside normal operation but must fail safely rather than
// silently lose a commit.
func (m *Manager) Commit(ctx context.Context, beginAddress, flushedUntilAddress int64, metadata []byte) error {
	currentVersion, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}
	newVersion := currentVersion + 1
	key := m.versionKey(newVersion)

	if err := m.store.Put(ctx, key, metadata); err != nil {
		return fmt.Errorf("s3dynamo: write recovery record: %w", err)
	}

	_, err = m.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.tableName),
		Item: map[string]types.AttributeValue{
			"log_id":  &types.AttributeValueMemberS{Value: m.logID},
			"version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newVersion)},
			"key":     &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentCommit
		}
		return fmt.Errorf("s3dynamo: advance current version: %w", err)
	}
	return nil
}

// GetCommitMetadata retrieves the blob at the current version pointer,
// or (nil, nil) if nothing has ever been committed.
func (m *Manager) GetCommitMetadata(ctx context.Context) ([]byte, error) {
	version, key, err := m.latestVersionAndKey(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, nil
	}
	return blobstore.ReadAll(ctx, m.store, key)
}

func (m *Manager) currentVersion(ctx context.Context) (uint64, error) {
	v, _, err := m.latestVersionAndKey(ctx)
	return v, err
}

func (m *Manager) latestVersionAndKey(ctx context.Context) (uint64, string, error) {
	resp, err := m.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(m.tableName),
		KeyConditionExpression: aws.String("log_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: m.logID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3dynamo: query current version: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3dynamo: invalid version attribute")
	}
	keyAttr, ok := item["key"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3dynamo: invalid key attribute")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("s3dynamo: parse version: %w", err)
	}
	return version, keyAttr.Value, nil
}

func (m *Manager) versionKey(version uint64) string {
	return fmt.Sprintf("commit/%s/%020d", m.logID, version)
}
