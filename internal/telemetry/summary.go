package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/codechat/internal/chat"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketUnder100ms LatencyBucket = "lt_100ms"
	BucketUnder1s    LatencyBucket = "lt_1s"
	BucketUnder5s    LatencyBucket = "lt_5s"
	BucketUnder30s   LatencyBucket = "lt_30s"
	BucketOver30s    LatencyBucket = "ge_30s"
)

// LatencyToBucket returns the bucket for d. Cache hits land in the first
// bucket; synthesized answers usually take seconds.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < 100*time.Millisecond:
		return BucketUnder100ms
	case d < time.Second:
		return BucketUnder1s
	case d < 5*time.Second:
		return BucketUnder5s
	case d < 30*time.Second:
		return BucketUnder30s
	default:
		return BucketOver30s
	}
}

// Summary aggregates requests since a point in time.
type Summary struct {
	Since         time.Time               `json:"since"`
	Total         int64                   `json:"total"`
	Outcomes      map[string]int64        `json:"outcomes"`
	Codes         map[string]int64        `json:"codes"`
	Identities    int64                   `json:"identities"`
	CacheHitRate  float64                 `json:"cache_hit_rate"`
	AvgDurationMs float64                 `json:"avg_duration_ms"`
	P95DurationMs int64                   `json:"p95_duration_ms"`
	Latency       map[LatencyBucket]int64 `json:"latency"`
}

// Summary aggregates stored events created at or after since.
func (s *Store) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	sinceMs := since.UnixMilli()
	sum := &Summary{
		Since:    since.UTC(),
		Outcomes: make(map[string]int64),
		Codes:    make(map[string]int64),
		Latency:  make(map[LatencyBucket]int64),
	}

	var avg *float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT identity_hash), AVG(duration_ms)
		FROM chat_requests WHERE created_at >= ?`, sinceMs).
		Scan(&sum.Total, &sum.Identities, &avg)
	if err != nil {
		return nil, fmt.Errorf("summarize chat requests: %w", err)
	}
	if sum.Total == 0 {
		return sum, nil
	}
	if avg != nil {
		sum.AvgDurationMs = *avg
	}

	if err := s.countBy(ctx, "outcome", sinceMs, sum.Outcomes); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "code", sinceMs, sum.Codes); err != nil {
		return nil, err
	}
	delete(sum.Codes, "")

	served := sum.Outcomes[chat.OutcomeAnswered] + sum.Outcomes[chat.OutcomeCacheHit]
	if served > 0 {
		sum.CacheHitRate = float64(sum.Outcomes[chat.OutcomeCacheHit]) / float64(served)
	}

	if err := s.latency(ctx, sinceMs, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *Store) countBy(ctx context.Context, column string, sinceMs int64, into map[string]int64) error {
	// column is one of a fixed set of identifiers, never user input.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM chat_requests WHERE created_at >= ? GROUP BY `+column, sinceMs)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

func (s *Store) latency(ctx context.Context, sinceMs int64, sum *Summary) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT duration_ms FROM chat_requests WHERE created_at >= ? ORDER BY duration_ms`, sinceMs)
	if err != nil {
		return fmt.Errorf("query latencies: %w", err)
	}
	defer rows.Close()

	durations := make([]int64, 0, sum.Total)
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		durations = append(durations, ms)
		sum.Latency[LatencyToBucket(time.Duration(ms)*time.Millisecond)]++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if n := len(durations); n > 0 {
		idx := (n*95+99)/100 - 1
		sum.P95DurationMs = durations[idx]
	}
	return nil
}
