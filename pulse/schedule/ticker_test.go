package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	testdb "github.com/teranos/attrmigrate/internal/testing"
	"github.com/teranos/attrmigrate/runlog"
)

// database/sql keeps one opener goroutine per open DB until t.Cleanup closes it
var ignoreDBOpener = goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener")

func countingPass(n *atomic.Int32) PassFunc {
	return func(context.Context) (*runlog.Summary, error) {
		n.Add(1)
		return &runlog.Summary{Success: true}, nil
	}
}

func TestTicker_RunsDueJobAndReschedules(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	ctx := context.Background()
	db := testdb.CreateTestDB(t)
	store := NewStore(db)
	_, err := store.EnsureJob(ctx, ConversionJobID, 3600)
	require.NoError(t, err)

	var runs atomic.Int32
	executor := NewExecutor(db, countingPass(&runs), ExecutorConfig{}, zap.NewNop().Sugar())
	cfg := DefaultTickerConfig()
	cfg.Interval = 10 * time.Millisecond
	ticker := NewTicker(store, executor, cfg, zap.NewNop().Sugar())

	ticker.Start()
	defer ticker.Stop()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	var job *Job
	require.Eventually(t, func() bool {
		job, err = store.GetJob(ctx, ConversionJobID)
		return err == nil && job.LastExecutionID != ""
	}, 2*time.Second, 10*time.Millisecond)
	require.NotNil(t, job.NextRunAt)
	assert.True(t, job.NextRunAt.After(time.Now().Add(50*time.Minute)), "next run one interval out")

	// Not due again within the interval
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	require.NoError(t, ticker.Reschedule(ctx, 120))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	job, err = store.GetJob(ctx, ConversionJobID)
	require.NoError(t, err)
	assert.Equal(t, 120, job.IntervalSeconds)
}

func TestTicker_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	db := testdb.CreateTestDB(t)
	store := NewStore(db)
	var runs atomic.Int32
	executor := NewExecutor(db, countingPass(&runs), ExecutorConfig{}, zap.NewNop().Sugar())
	cfg := DefaultTickerConfig()
	cfg.Interval = 10 * time.Millisecond
	ticker := NewTicker(store, executor, cfg, zap.NewNop().Sugar())

	ticker.Start()
	require.Eventually(t, func() bool {
		return ticker.GetStats()["ticks_since_start"].(int64) > 0
	}, time.Second, 5*time.Millisecond)
	ticker.Stop()

	ticksBefore := ticker.GetStats()["ticks_since_start"].(int64)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, ticksBefore, ticker.GetStats()["ticks_since_start"].(int64), "Ticks should not increment after stop")
	assert.Zero(t, runs.Load(), "no job, no pass")
}

func TestTickerWithContext_Cancellation(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	db := testdb.CreateTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	executor := NewExecutor(db, countingPass(new(atomic.Int32)), ExecutorConfig{}, zap.NewNop().Sugar())
	ticker := NewTickerWithContext(ctx, NewStore(db), executor, DefaultTickerConfig(), zap.NewNop().Sugar())

	ticker.Start()
	time.Sleep(20 * time.Millisecond)
	cancel()

	// Ticker should stop
	ticker.wg.Wait()
	assert.NotNil(t, ticker.GetStats())
}

func TestReadSystemMetrics(t *testing.T) {
	metrics, err := readSystemMetrics()
	if err != nil {
		t.Skipf("memory stats unavailable: %v", err)
	}
	assert.GreaterOrEqual(t, metrics.MemoryPercent, 0.0)
	assert.LessOrEqual(t, metrics.MemoryUsedGB, metrics.MemoryTotalGB)
}
