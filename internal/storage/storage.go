// Package storage provides the persistence layer: a DynamoDB single table
// for commitments, connection state, and credits; Redis for deleted-item
// shadows; S3 for the raw message archive.
//
// The single table is keyed PK/SK:
//
//	USER#<uid> / COMMITMENT#<commitment_id>   commitment JSON in Data
//	USER#<uid> / CONNECTION#gmail             connection state (flat attributes)
//	USER#<uid> / CREDITS                      credit record (flat attributes)
//
// Commitment items keep the record as a JSON blob plus the two attributes
// queries push down on (Completed, MessageID). Connection and credit items
// are stored flat so updates can merge individual fields.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/foundercrm/commitment-engine/internal/config"
)

// ErrNotFound is returned for absent records. Callers map it to 404.
var ErrNotFound = errors.New("storage: record not found")

// Store is the DynamoDB + S3 client pair. Safe for concurrent use.
type Store struct {
	dynamoDB *dynamodb.Client
	s3Client *s3.Client
	table    string
	bucket   string
}

// dynamoItem is the envelope for JSON-blob items (commitments).
type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
	Completed bool   `dynamodbav:"Completed"`
	MessageID string `dynamodbav:"MessageID,omitempty"`
}

// New creates a Store from the storage configuration. An empty profile uses
// the default credential chain (IAM role on ECS).
func New(ctx context.Context, cfg appconfig.StorageConfig) (*Store, error) {
	var awsCfg aws.Config
	var err error

	if profile := cfg.GetAWSProfile(); profile != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.AWSRegion),
			config.WithSharedConfigProfile(profile),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.AWSRegion),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Store{
		dynamoDB: dynamodb.NewFromConfig(awsCfg),
		s3Client: s3.NewFromConfig(awsCfg),
		table:    cfg.DynamoDBTable,
		bucket:   cfg.S3Bucket,
	}, nil
}

func userPK(userID string) string { return "USER#" + userID }

// getItem fetches one item by key. Returns ErrNotFound when absent.
func (s *Store) getItem(ctx context.Context, pk, sk string) (map[string]types.AttributeValue, error) {
	result, err := s.dynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting item %s/%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return result.Item, nil
}

// mergeFields applies a field-level update to one item: every entry becomes
// a SET clause, so unrelated attributes are never clobbered. Creates the
// item when absent.
func (s *Store) mergeFields(ctx context.Context, pk, sk string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	expr := "SET "
	names := make(map[string]string, len(fields))
	values := make(map[string]types.AttributeValue, len(fields))
	i := 0
	for k, v := range fields {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling field %s: %w", k, err)
		}
		if i > 0 {
			expr += ", "
		}
		expr += fmt.Sprintf("#f%d = :v%d", i, i)
		names[fmt.Sprintf("#f%d", i)] = k
		values[fmt.Sprintf(":v%d", i)] = av
		i++
	}

	_, err := s.dynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("merging item %s/%s: %w", pk, sk, err)
	}
	return nil
}
