package telemetry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codechat/internal/chat"
	cerrors "github.com/Aman-CERP/codechat/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func event(id, identity, outcome string, d time.Duration, at time.Time) chat.Event {
	return chat.Event{RequestID: id, Identity: identity, Outcome: outcome, Duration: d, At: at}
}

func TestStore_RecordAndSummary(t *testing.T) {
	// Given a store with a mix of outcomes
	s := openTestStore(t)
	ctx := context.Background()
	events := []chat.Event{
		event("r1", "ip:10.0.0.1", chat.OutcomeAnswered, 2*time.Second, base),
		event("r2", "ip:10.0.0.1", chat.OutcomeCacheHit, 3*time.Millisecond, base.Add(time.Second)),
		event("r3", "user:alice", chat.OutcomeAnswered, 4*time.Second, base.Add(2*time.Second)),
		event("r4", "user:alice", chat.OutcomeCacheHit, time.Millisecond, base.Add(3*time.Second)),
		event("old", "user:bob", chat.OutcomeAnswered, time.Second, base.Add(-time.Hour)),
	}
	rejected := event("r5", "user:bob", chat.OutcomeRejected, 0, base.Add(4*time.Second))
	rejected.Code = cerrors.CodeRateLimited
	events = append(events, rejected)
	for _, e := range events {
		require.NoError(t, s.Record(ctx, e))
	}

	// When summarizing from base
	sum, err := s.Summary(ctx, base)
	require.NoError(t, err)

	// Then the old event is excluded and counts add up
	assert.Equal(t, int64(5), sum.Total)
	assert.Equal(t, int64(3), sum.Identities)
	assert.Equal(t, int64(2), sum.Outcomes[chat.OutcomeAnswered])
	assert.Equal(t, int64(2), sum.Outcomes[chat.OutcomeCacheHit])
	assert.Equal(t, int64(1), sum.Outcomes[chat.OutcomeRejected])
	assert.Equal(t, map[string]int64{cerrors.CodeRateLimited: 1}, sum.Codes)
	assert.InDelta(t, 0.5, sum.CacheHitRate, 1e-9)
	assert.Equal(t, int64(4000), sum.P95DurationMs)
	assert.Equal(t, int64(3), sum.Latency[BucketUnder100ms])
	assert.Equal(t, int64(2), sum.Latency[BucketUnder5s])
}

func TestStore_IdentitiesAreHashed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, event("r1", "user:alice@example.com", chat.OutcomeAnswered, time.Second, base)))

	var stored string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT identity_hash FROM chat_requests`).Scan(&stored))

	assert.Equal(t, HashIdentity("user:alice@example.com"), stored)
	assert.NotContains(t, stored, "alice")
	assert.Len(t, stored, 32)
}

func TestStore_EmptySummary(t *testing.T) {
	sum, err := openTestStore(t).Summary(context.Background(), base)
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
	assert.Zero(t, sum.CacheHitRate)
	assert.NotNil(t, sum.Outcomes)
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, event("old", "a", chat.OutcomeAnswered, time.Second, base.Add(-48*time.Hour))))
	require.NoError(t, s.Record(ctx, event("new", "a", chat.OutcomeAnswered, time.Second, base)))

	n, err := s.Prune(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sum, err := s.Summary(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Total)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, event("r1", "a", chat.OutcomeAnswered, time.Second, base)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	sum, err := s.Summary(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Total)
	assert.FileExists(t, path+".lock")
}

func TestStore_ConcurrentRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Record(ctx, event(fmt.Sprintf("r%d", i), "a", chat.OutcomeAnswered, time.Second, base)))
		}(i)
	}
	wg.Wait()

	sum, err := s.Summary(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(50), sum.Total)
}

func TestLatencyToBucket(t *testing.T) {
	assert.Equal(t, BucketUnder100ms, LatencyToBucket(99*time.Millisecond))
	assert.Equal(t, BucketUnder1s, LatencyToBucket(100*time.Millisecond))
	assert.Equal(t, BucketUnder5s, LatencyToBucket(4999*time.Millisecond))
	assert.Equal(t, BucketUnder30s, LatencyToBucket(5*time.Second))
	assert.Equal(t, BucketOver30s, LatencyToBucket(time.Minute))
}

func TestRing(t *testing.T) {
	r := NewRing[int](3)
	assert.Empty(t, r.Items())
	for i := 1; i <= 5; i++ {
		r.Add(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, 3, r.Len())
}

func TestRecentAndFanout(t *testing.T) {
	recent := NewRecent(2)
	failing := recorderFunc(func(context.Context, chat.Event) error { return errors.New("disk full") })
	f := Fanout{recent, nil, failing}

	err := f.Record(context.Background(), event("r1", "user:alice", chat.OutcomeAnswered, time.Second, base))
	assert.ErrorContains(t, err, "disk full")
	require.NoError(t, recent.Record(context.Background(), event("r2", "user:bob", chat.OutcomeCacheHit, 0, base)))
	require.NoError(t, recent.Record(context.Background(), event("r3", "user:carol", chat.OutcomeCacheHit, 0, base)))

	got := recent.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "r3", got[0].RequestID)
	assert.Equal(t, "r2", got[1].RequestID)
	assert.Equal(t, HashIdentity("user:carol"), got[0].Identity)
}

type recorderFunc func(context.Context, chat.Event) error

func (f recorderFunc) Record(ctx context.Context, e chat.Event) error { return f(ctx, e) }
