// Package task implements the recurring-task supervisor: a
// single-threaded tick loop that decides which narratives are due,
// drives each one through to completion, and records the outcome with
// failure backoff.
package task

import (
	"context"
	"time"

	"narrata/internal/narrative"
	"narrata/internal/observability"
	"narrata/internal/storage"
)

// Store is the persistence surface the supervisor drives. *storage.Store
// satisfies it.
type Store interface {
	DueTasks(ctx context.Context, now time.Time) ([]string, error)
	GetTaskState(ctx context.Context, taskID string) (storage.TaskState, error)
	UpsertTaskState(ctx context.Context, t storage.TaskState) error
	InsertTaskExecution(ctx context.Context, taskID string, startedAt time.Time) (int64, error)
	CompleteTaskExecution(ctx context.Context, id int64, completedAt time.Time, success bool, succeeded, failed, skipped int, errMsg string) error
	PruneOldExecutions(ctx context.Context, days int, now time.Time) (int64, error)
}

var _ Store = (*storage.Store)(nil)

// Runner is the contract internal/executor.Executor satisfies.
type Runner interface {
	Run(ctx context.Context, n narrative.Narrative) (narrative.ExecutionRecord, error)
}

// NarrativeLoader resolves a task's narrative_name to the narrative it
// runs. cmd/narrata supplies this from whichever narrative files are
// configured; the supervisor has no opinion on where narratives live.
type NarrativeLoader func(ctx context.Context, narrativeName string) (narrative.Narrative, error)

// Supervisor ticks on an interval, running every due task one at a time.
// MaxFailures is the consecutive-failure count at which a task is paused:
// the failure that brings the count up to MaxFailures pauses it (spec's `record_failure(task_id,
// max_failures)` takes max_failures as a parameter; this package applies
// one threshold process-wide rather than per task, since no per-task
// override is named anywhere a task's persisted state is defined).
type Supervisor struct {
	Store       Store
	Runner      Runner
	Load        NarrativeLoader
	MaxFailures int
	// Schedule computes a task's next_run from the time it just ran.
	// Defaults to "one hour from now" when nil.
	Schedule func(lastRun time.Time) time.Time
}

// New builds a Supervisor. maxFailures must be at least 1; a
// non-positive value is treated as 1 so a single failure always pauses
// rather than silently never pausing.
func New(store Store, runner Runner, load NarrativeLoader, maxFailures int) *Supervisor {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Supervisor{Store: store, Runner: runner, Load: load, MaxFailures: maxFailures}
}

func (s *Supervisor) nextRun(lastRun time.Time) time.Time {
	if s.Schedule != nil {
		return s.Schedule(lastRun)
	}
	return lastRun.Add(time.Hour)
}

// Run starts the tick loop and blocks until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick enumerates every non-paused, due task and runs each one in turn.
// A task whose execution errors does not stop the tick from reaching the
// rest of the due list.
func (s *Supervisor) Tick(ctx context.Context) {
	now := time.Now()
	ids, err := s.Store.DueTasks(ctx, now)
	if err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Msg("failed to enumerate due tasks")
		return
	}
	for _, id := range ids {
		s.runOne(ctx, id)
	}
}

// runOne executes the full per-task run lifecycle (spec §4.8): a should-
// execute check, a running execution row, the narrative run itself, then
// success or failure bookkeeping against the task's state.
func (s *Supervisor) runOne(ctx context.Context, taskID string) {
	log := observability.LoggerWithTrace(ctx)

	state, err := s.Store.GetTaskState(ctx, taskID)
	if err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("failed to load task state")
		return
	}
	if !s.shouldExecute(state) {
		log.Debug().Str("task_id", taskID).Msg("task is paused, skipping")
		return
	}

	startedAt := time.Now()
	execID, err := s.Store.InsertTaskExecution(ctx, taskID, startedAt)
	if err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("failed to insert task execution row")
		return
	}

	n, err := s.Load(ctx, state.NarrativeName)
	if err != nil {
		s.recordFailure(ctx, state, execID, startedAt, 0, 0, 0, err)
		return
	}

	rec, err := s.Runner.Run(ctx, n)
	succeeded, failed, skipped := actCounts(n, rec)
	if err != nil {
		s.recordFailure(ctx, state, execID, startedAt, succeeded, failed, skipped, err)
		return
	}
	s.recordSuccess(ctx, state, execID, startedAt, succeeded, failed, skipped)
}

// shouldExecute implements `should_execute(task_id)`: a paused task never
// runs, regardless of how it reached this point.
func (s *Supervisor) shouldExecute(state storage.TaskState) bool {
	return !state.IsPaused
}

func (s *Supervisor) recordSuccess(ctx context.Context, state storage.TaskState, execID int64, startedAt time.Time, succeeded, failed, skipped int) {
	completedAt := time.Now()
	if err := s.Store.CompleteTaskExecution(ctx, execID, completedAt, true, succeeded, failed, skipped, ""); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("task_id", state.TaskID).Msg("failed to complete task execution row")
	}

	state.LastRun = startedAt
	state.NextRun = s.nextRun(startedAt)
	state.ConsecutiveFailures = 0
	state.IsPaused = false
	if err := s.Store.UpsertTaskState(ctx, state); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("task_id", state.TaskID).Msg("failed to persist task state after success")
	}
}

func (s *Supervisor) recordFailure(ctx context.Context, state storage.TaskState, execID int64, startedAt time.Time, succeeded, failed, skipped int, cause error) {
	completedAt := time.Now()
	if err := s.Store.CompleteTaskExecution(ctx, execID, completedAt, false, succeeded, failed, skipped, cause.Error()); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("task_id", state.TaskID).Msg("failed to complete task execution row")
	}

	state.LastRun = startedAt
	state.ConsecutiveFailures++
	if state.ConsecutiveFailures >= s.MaxFailures {
		state.IsPaused = true
	} else {
		state.NextRun = s.nextRun(startedAt)
	}
	if err := s.Store.UpsertTaskState(ctx, state); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("task_id", state.TaskID).Msg("failed to persist task state after failure")
	}
}

// Prune deletes execution rows older than days, per spec's
// prune_old_executions(days).
func (s *Supervisor) Prune(ctx context.Context, days int) (int64, error) {
	return s.Store.PruneOldExecutions(ctx, days, time.Now())
}

// actCounts derives the run lifecycle's success/failed/skipped
// sub-operation counts from the narrative's act count and the execution
// record actually produced: acts already recorded in rec succeeded, the
// act that was running when the run stopped (if any) failed, and any
// acts after it in the TOC were never reached.
func actCounts(n narrative.Narrative, rec narrative.ExecutionRecord) (succeeded, failed, skipped int) {
	succeeded = len(rec.Acts)
	total := len(n.TOC)
	if rec.Status == narrative.StatusFailed && succeeded < total {
		failed = 1
	}
	skipped = total - succeeded - failed
	if skipped < 0 {
		skipped = 0
	}
	return succeeded, failed, skipped
}
