// Package task repeats a unit of work on a fixed interval.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultInterval separates cycles when the scheduler is built with a non-positive interval.
	DefaultInterval = time.Minute

	logEventCycleStarted  = "cycle_started"
	logEventCycleFinished = "cycle_finished"
	logEventCyclePanicked = "cycle_panicked"
	logEventLimitReached  = "cycle_limit_reached"
	logFieldCycle         = "cycle"
	logFieldDuration      = "duration"
)

// CycleFunc performs one cycle. Cycles are numbered from 1.
type CycleFunc func(ctx context.Context, cycle int)

// Scheduler runs a CycleFunc once on start and then every interval on a
// single goroutine, so cycles never overlap. A positive cycle limit ends the
// loop after that many cycles.
type Scheduler struct {
	interval     time.Duration
	cycleLimit   int
	cycleFunc    CycleFunc
	logger       *zap.Logger
	trigger      chan struct{}
	cycles       atomic.Int64
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler builds a stopped scheduler.
func NewScheduler(interval time.Duration, cycleFunc CycleFunc, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		interval:  interval,
		cycleFunc: cycleFunc,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
	}
}

// WithCycleLimit stops the loop once limit cycles have run. A non-positive
// limit keeps it running until stopped.
func (scheduler *Scheduler) WithCycleLimit(limit int) *Scheduler {
	scheduler.cycleLimit = limit
	return scheduler
}

// Start launches the loop. Starting a running scheduler has no effect.
func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.cycleFunc == nil {
		return
	}
	scheduler.controlMutex.Lock()
	if scheduler.cancel != nil {
		scheduler.controlMutex.Unlock()
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	done := make(chan struct{})
	scheduler.done = done
	scheduler.controlMutex.Unlock()

	go scheduler.loop(runtimeCtx, done)
}

// Trigger requests an extra cycle as soon as the current one ends.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for the running cycle to return.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel := scheduler.cancel
	done := scheduler.done
	scheduler.cancel = nil
	scheduler.done = nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Wait blocks until the loop ends because its context was canceled or the
// cycle limit was reached. It returns at once when the scheduler is stopped.
func (scheduler *Scheduler) Wait() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	done := scheduler.done
	scheduler.controlMutex.Unlock()
	if done != nil {
		<-done
	}
}

// Cycles reports how many cycles have completed.
func (scheduler *Scheduler) Cycles() int {
	if scheduler == nil {
		return 0
	}
	return int(scheduler.cycles.Load())
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(scheduler.interval)
	defer timer.Stop()
	for {
		scheduler.run(ctx)
		if scheduler.limitReached() {
			scheduler.logger.Debug(logEventLimitReached, zap.Int(logFieldCycle, scheduler.Cycles()))
			return
		}
		resetTimer(timer, scheduler.interval)
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
		case <-timer.C:
		}
	}
}

func (scheduler *Scheduler) limitReached() bool {
	return scheduler.cycleLimit > 0 && scheduler.Cycles() >= scheduler.cycleLimit
}

func resetTimer(timer *time.Timer, interval time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(interval)
}

func (scheduler *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cycle := int(scheduler.cycles.Load()) + 1
	cycleLogger := scheduler.logger.With(zap.Int(logFieldCycle, cycle))
	started := time.Now()
	cycleLogger.Debug(logEventCycleStarted)

	defer func() {
		scheduler.cycles.Add(1)
		if recovered := recover(); recovered != nil {
			cycleLogger.Error(logEventCyclePanicked, zap.String("panic", fmt.Sprint(recovered)))
			return
		}
		cycleLogger.Debug(logEventCycleFinished, zap.Duration(logFieldDuration, time.Since(started)))
	}()
	scheduler.cycleFunc(ctx, cycle)
}
