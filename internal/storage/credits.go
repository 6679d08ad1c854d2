package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/foundercrm/commitment-engine/internal/credits"
)

const (
	creditsSK       = "CREDITS"
	usageHistoryMax = 100
)

// CreditStore persists per-user credit records at USER#<uid> / CREDITS.
// Debits are a single atomic UpdateItem so concurrent extraction workers
// never lose a charge.
type CreditStore struct {
	store *Store
}

// Credits returns the credit store backed by this store.
func (s *Store) Credits() *CreditStore {
	return &CreditStore{store: s}
}

// Get returns the user's credit record, or ErrNotFound when no record exists.
func (c *CreditStore) Get(ctx context.Context, userID string) (*credits.Record, error) {
	raw, err := c.store.getItem(ctx, userPK(userID), creditsSK)
	if err != nil {
		return nil, err
	}
	var rec credits.Record
	if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling credit record: %w", err)
	}
	rec.UserID = userID
	return &rec, nil
}

// Initialize writes a fresh credit record unless one already exists. It
// returns the stored record either way, so races between first-touch
// callers all observe the same balance.
func (c *CreditStore) Initialize(ctx context.Context, rec *credits.Record) (*credits.Record, error) {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling credit record: %w", err)
	}
	av["PK"] = &types.AttributeValueMemberS{Value: userPK(rec.UserID)}
	av["SK"] = &types.AttributeValueMemberS{Value: creditsSK}

	_, err = c.store.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.store.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return c.Get(ctx, rec.UserID)
		}
		return nil, fmt.Errorf("initializing credit record: %w", err)
	}
	return rec, nil
}

// Debit atomically adds the event's credits to credits_used and appends the
// event to usage_history, returning the post-debit record. ErrNotFound means
// the user has no credit record yet.
func (c *CreditStore) Debit(ctx context.Context, userID string, ev credits.UsageEvent) (*credits.Record, error) {
	evAV, err := attributevalue.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshaling usage event: %w", err)
	}

	result, err := c.store.dynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.store.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: creditsSK},
		},
		UpdateExpression: aws.String(
			"ADD credits_used :amt " +
				"SET updated_at = :now, usage_history = list_append(if_not_exists(usage_history, :empty), :ev)"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amt":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", ev.Credits)},
			":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":ev":    &types.AttributeValueMemberL{Value: []types.AttributeValue{evAV}},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("debiting credits: %w", err)
	}

	var rec credits.Record
	if err := attributevalue.UnmarshalMap(result.Attributes, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling debited record: %w", err)
	}
	rec.UserID = userID

	if len(rec.UsageHistory) > usageHistoryMax {
		rec.UsageHistory = rec.UsageHistory[len(rec.UsageHistory)-usageHistoryMax:]
		// Best effort; a failed trim just leaves extra history until the
		// next debit trims again.
		_ = c.store.mergeFields(ctx, userPK(userID), creditsSK, map[string]any{
			"usage_history": rec.UsageHistory,
		})
	}
	return &rec, nil
}

// Reset restores the user's balance: credits_used back to zero, total set to
// the given amount, history cleared.
func (c *CreditStore) Reset(ctx context.Context, userID string, total float64) (*credits.Record, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	err := c.store.mergeFields(ctx, userPK(userID), creditsSK, map[string]any{
		"user_id":       userID,
		"credits_total": total,
		"credits_used":  0.0,
		"usage_history": []credits.UsageEvent{},
		"updated_at":    now,
	})
	if err != nil {
		return nil, fmt.Errorf("resetting credits: %w", err)
	}
	return c.Get(ctx, userID)
}
