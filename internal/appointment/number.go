package appointment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// NumberSource hands out appointment numbers. Numbers are scoped to the
// booking day and must never repeat.
type NumberSource interface {
	Next(ctx context.Context, day time.Time) (string, error)
}

// FormatNumber renders the human-facing number, e.g. APT-20250601-0042.
func FormatNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("APT-%s-%04d", day.Format("20060102"), seq)
}

// LocalSequence is an in-memory NumberSource. It restarts on process restart,
// so it is only suitable alongside the in-memory repository.
type LocalSequence struct {
	mu   sync.Mutex
	last map[string]int64
}

func NewLocalSequence() *LocalSequence {
	return &LocalSequence{last: make(map[string]int64)}
}

func (s *LocalSequence) Next(_ context.Context, day time.Time) (string, error) {
	key := day.Format("20060102")
	s.mu.Lock()
	s.last[key]++
	seq := s.last[key]
	s.mu.Unlock()
	return FormatNumber(day, seq), nil
}
