package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveMessage stores the raw provider message under
// messages/<uid>/<message_id>.json. Archiving is best-effort; callers log
// failures and keep going.
func (s *Store) ArchiveMessage(ctx context.Context, userID, messageID string, raw any) error {
	if s.bucket == "" {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshaling message for archive: %w", err)
	}

	key := fmt.Sprintf("messages/%s/%s.json", userID, messageID)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archiving message to s3: %w", err)
	}
	return nil
}
