package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/care-scheduling/internal/appointment"
)

// Day keys only need to outlive the day they count.
const sequenceKeyTTL = 72 * time.Hour

// NumberSequence implements appointment.NumberSource with a per-day INCR
// counter shared by every instance.
type NumberSequence struct {
	client *redis.Client
}

var _ appointment.NumberSource = (*NumberSequence)(nil)

func NewNumberSequence(client *redis.Client) *NumberSequence {
	return &NumberSequence{client: client}
}

func (s *NumberSequence) Next(ctx context.Context, day time.Time) (string, error) {
	key := "apptnum:" + day.Format("20060102")
	seq, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("increment appointment sequence: %w", err)
	}
	if seq == 1 {
		if err := s.client.Expire(ctx, key, sequenceKeyTTL).Err(); err != nil {
			return "", fmt.Errorf("expire appointment sequence: %w", err)
		}
	}
	return appointment.FormatNumber(day, seq), nil
}
