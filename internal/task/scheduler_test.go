package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	testSchedulerInterval = 10 * time.Millisecond
	testSchedulerTimeout  = 2 * time.Second
	testLongInterval      = time.Hour
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewSchedulerDefaultsInterval(testingT *testing.T) {
	scheduler := NewScheduler(0, func(context.Context, int) {}, nil)
	require.Equal(testingT, DefaultInterval, scheduler.interval)
	require.NotNil(testingT, scheduler.logger)
}

func TestSchedulerRunsFirstCycleImmediately(testingT *testing.T) {
	var runCount int64
	scheduler := NewScheduler(testLongInterval, func(context.Context, int) {
		atomic.AddInt64(&runCount, 1)
	}, nil)

	scheduler.Start(context.Background())
	require.Eventually(testingT, func() bool {
		return atomic.LoadInt64(&runCount) == 1
	}, testSchedulerTimeout, time.Millisecond)

	scheduler.Stop()
	require.Equal(testingT, 1, scheduler.Cycles())
}

func TestSchedulerRepeatsOnInterval(testingT *testing.T) {
	var (
		observedMutex  sync.Mutex
		observedCycles []int
	)
	scheduler := NewScheduler(testSchedulerInterval, func(_ context.Context, cycle int) {
		observedMutex.Lock()
		observedCycles = append(observedCycles, cycle)
		observedMutex.Unlock()
	}, nil)

	scheduler.Start(context.Background())
	require.Eventually(testingT, func() bool {
		return scheduler.Cycles() >= 3
	}, testSchedulerTimeout, testSchedulerInterval)
	scheduler.Stop()

	observedMutex.Lock()
	defer observedMutex.Unlock()
	require.GreaterOrEqual(testingT, len(observedCycles), 3)
	for index, cycle := range observedCycles {
		require.Equal(testingT, index+1, cycle)
	}
}

func TestSchedulerRunsOnTrigger(testingT *testing.T) {
	var runCount int64
	scheduler := NewScheduler(testLongInterval, func(context.Context, int) {
		atomic.AddInt64(&runCount, 1)
	}, nil)
	runtimeContext, cancel := context.WithCancel(context.Background())
	testingT.Cleanup(cancel)

	scheduler.Start(runtimeContext)
	require.Eventually(testingT, func() bool {
		return scheduler.Cycles() == 1
	}, testSchedulerTimeout, time.Millisecond)
	scheduler.Trigger()

	require.Eventually(testingT, func() bool {
		return atomic.LoadInt64(&runCount) == 2
	}, testSchedulerTimeout, time.Millisecond)

	scheduler.Stop()
	require.Nil(testingT, scheduler.cancel)
}

func TestSchedulerSurvivesPanickingCycle(testingT *testing.T) {
	scheduler := NewScheduler(testSchedulerInterval, func(_ context.Context, cycle int) {
		if cycle == 1 {
			panic("cycle failure")
		}
	}, nil)

	scheduler.Start(context.Background())
	require.Eventually(testingT, func() bool {
		return scheduler.Cycles() >= 2
	}, testSchedulerTimeout, testSchedulerInterval)
	scheduler.Stop()
}

func TestSchedulerStopsWhenContextEnds(testingT *testing.T) {
	runtimeContext, cancel := context.WithCancel(context.Background())
	cycleContexts := make(chan context.Context, 1)
	scheduler := NewScheduler(testLongInterval, func(ctx context.Context, _ int) {
		cycleContexts <- ctx
	}, nil)

	scheduler.Start(runtimeContext)
	cycleContext := <-cycleContexts
	cancel()

	select {
	case <-cycleContext.Done():
	case <-time.After(testSchedulerTimeout):
		testingT.Fatal("cycle context was not canceled")
	}
	scheduler.Stop()
}

func TestSchedulerHandlesNilReceiver(testingT *testing.T) {
	var scheduler *Scheduler
	scheduler.Start(context.Background())
	scheduler.Trigger()
	scheduler.Stop()
	require.Zero(testingT, scheduler.Cycles())
}

func TestSchedulerSkipsStartWhenCycleMissing(testingT *testing.T) {
	scheduler := NewScheduler(testSchedulerInterval, nil, nil)
	scheduler.Start(context.Background())
	require.Nil(testingT, scheduler.cancel)
}

func TestSchedulerStartIsIdempotent(testingT *testing.T) {
	scheduler := NewScheduler(testLongInterval, func(context.Context, int) {}, nil)
	scheduler.Start(context.Background())
	doneAfterStart := scheduler.done
	require.NotNil(testingT, scheduler.cancel)
	scheduler.Start(context.Background())
	require.Equal(testingT, doneAfterStart, scheduler.done)
	scheduler.Stop()
}

func TestSchedulerStopsAtCycleLimit(testingT *testing.T) {
	var runCount int64
	scheduler := NewScheduler(testSchedulerInterval, func(context.Context, int) {
		atomic.AddInt64(&runCount, 1)
	}, nil).WithCycleLimit(3)

	scheduler.Start(context.Background())
	scheduler.Wait()
	require.Equal(testingT, 3, scheduler.Cycles())
	require.Equal(testingT, int64(3), atomic.LoadInt64(&runCount))
	scheduler.Stop()
}

func TestSchedulerWaitEndsWithContext(testingT *testing.T) {
	runtimeContext, cancel := context.WithCancel(context.Background())
	scheduler := NewScheduler(testLongInterval, func(context.Context, int) {}, nil)

	scheduler.Start(runtimeContext)
	require.Eventually(testingT, func() bool {
		return scheduler.Cycles() == 1
	}, testSchedulerTimeout, time.Millisecond)
	cancel()
	scheduler.Wait()
	scheduler.Stop()
	require.Equal(testingT, 1, scheduler.Cycles())
}

func TestSchedulerWaitReturnsWhenStopped(testingT *testing.T) {
	scheduler := NewScheduler(testLongInterval, func(context.Context, int) {}, nil)
	scheduler.Wait()
	require.Zero(testingT, scheduler.Cycles())
}
