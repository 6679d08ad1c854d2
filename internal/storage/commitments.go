package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/foundercrm/commitment-engine/internal/commitment"
)

const commitmentSKPrefix = "COMMITMENT#"

// CommitmentRepo is the DynamoDB implementation of commitment.Repository.
type CommitmentRepo struct {
	store *Store
}

// Commitments returns the commitment repository backed by this store.
func (s *Store) Commitments() *CommitmentRepo {
	return &CommitmentRepo{store: s}
}

func (r *CommitmentRepo) put(ctx context.Context, c *commitment.Commitment) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling commitment: %w", err)
	}

	item := dynamoItem{
		PK:        userPK(c.UserID),
		SK:        commitmentSKPrefix + c.CommitmentID,
		Data:      string(data),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Completed: c.Completed,
		MessageID: c.MessageID,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = r.store.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.store.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting commitment to DynamoDB: %w", err)
	}
	return nil
}

// Create inserts a new commitment record.
func (r *CommitmentRepo) Create(ctx context.Context, c *commitment.Commitment) error {
	return r.put(ctx, c)
}

// Put overwrites an existing record in full.
func (r *CommitmentRepo) Put(ctx context.Context, c *commitment.Commitment) error {
	return r.put(ctx, c)
}

// Get returns a record by commitment_id.
func (r *CommitmentRepo) Get(ctx context.Context, userID, commitmentID string) (*commitment.Commitment, error) {
	raw, err := r.store.getItem(ctx, userPK(userID), commitmentSKPrefix+commitmentID)
	if err != nil {
		if err == ErrNotFound {
			return nil, commitment.ErrNotFound
		}
		return nil, err
	}
	return decodeCommitment(raw)
}

// Delete removes a record.
func (r *CommitmentRepo) Delete(ctx context.Context, userID, commitmentID string) error {
	// DeleteItem is a no-op on absent keys; check first so callers get a 404.
	if _, err := r.Get(ctx, userID, commitmentID); err != nil {
		return err
	}
	_, err := r.store.dynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.store.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: commitmentSKPrefix + commitmentID},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting commitment from DynamoDB: %w", err)
	}
	return nil
}

// List returns the user's commitments. A non-nil completed constraint is
// pushed down as a filter expression; the limit is applied after filtering
// because DynamoDB limits pages before filters run.
func (r *CommitmentRepo) List(ctx context.Context, userID string, completed *bool, limit int) ([]commitment.Commitment, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.store.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: userPK(userID)},
			":sk": &types.AttributeValueMemberS{Value: commitmentSKPrefix},
		},
	}
	if completed != nil {
		input.FilterExpression = aws.String("Completed = :c")
		input.ExpressionAttributeValues[":c"] = &types.AttributeValueMemberBOOL{Value: *completed}
	}

	var out []commitment.Commitment
	paginator := dynamodb.NewQueryPaginator(r.store.dynamoDB, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying commitments: %w", err)
		}
		for _, item := range page.Items {
			c, err := decodeCommitment(item)
			if err != nil {
				continue
			}
			out = append(out, *c)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// FindByMessageID returns the first commitment extracted from the given
// provider message. Live ingest calls this before extraction.
func (r *CommitmentRepo) FindByMessageID(ctx context.Context, userID, messageID string) (*commitment.Commitment, error) {
	result, err := r.store.dynamoDB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.store.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		FilterExpression:       aws.String("MessageID = :mid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: userPK(userID)},
			":sk":  &types.AttributeValueMemberS{Value: commitmentSKPrefix},
			":mid": &types.AttributeValueMemberS{Value: messageID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying by message id: %w", err)
	}
	for _, item := range result.Items {
		if c, err := decodeCommitment(item); err == nil {
			return c, nil
		}
	}
	return nil, commitment.ErrNotFound
}

func decodeCommitment(raw map[string]types.AttributeValue) (*commitment.Commitment, error) {
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	var c commitment.Commitment
	if err := json.Unmarshal([]byte(item.Data), &c); err != nil {
		return nil, fmt.Errorf("unmarshaling commitment data: %w", err)
	}
	return &c, nil
}
