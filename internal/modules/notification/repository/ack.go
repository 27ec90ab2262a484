package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const ackKeyPrefix = "notification:ack:"

// AckTTL bounds how long an idle user's ACK position is kept.
const AckTTL = 30 * 24 * time.Hour

// AckRepository remembers the last event id each user acknowledged on a push
// connection.
type AckRepository interface {
	SaveAck(ctx context.Context, userID, eventID string) error
	LastAck(ctx context.Context, userID string) (string, error)
}

type ackRepository struct {
	client *redis.Client
}

func NewAckRepository(client *redis.Client) AckRepository {
	return &ackRepository{client: client}
}

func ackKey(userID string) string {
	return ackKeyPrefix + userID
}

func (r *ackRepository) SaveAck(ctx context.Context, userID, eventID string) error {
	if err := r.client.Set(ctx, ackKey(userID), eventID, AckTTL).Err(); err != nil {
		return fmt.Errorf("save ack for %s: %w", userID, err)
	}
	return nil
}

// LastAck returns "" when the user never acknowledged anything.
func (r *ackRepository) LastAck(ctx context.Context, userID string) (string, error) {
	eventID, err := r.client.Get(ctx, ackKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load ack for %s: %w", userID, err)
	}
	return eventID, nil
}
