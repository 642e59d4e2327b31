package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"txengine/internal/domain/monthly"
	"txengine/internal/domain/transaction"
)

// Job entry names
const (
	EntryMonthlyTasks        = "monthly-tasks"
	EntryCompensationRetries = "compensation-retries"
)

// MonthlyRunner runs the end-of-month batch
type MonthlyRunner interface {
	Run(ctx context.Context) (*monthly.Report, error)
}

// Retrier replays parked compensations
type Retrier interface {
	RetryPending(ctx context.Context, limit int) (*transaction.RetryResult, error)
}

// MonthlyTasksJob charges maintenance fees and enforces average balances
type MonthlyTasksJob struct {
	runner MonthlyRunner
	month  string
}

func NewMonthlyTasksJob(runner MonthlyRunner, now time.Time) *MonthlyTasksJob {
	return &MonthlyTasksJob{runner: runner, month: now.Format("2006-01")}
}

// Execute runs the batch. Per-product failures are reported as an error
// after the whole batch has run.
func (j *MonthlyTasksJob) Execute(ctx context.Context) error {
	report, err := j.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("monthly tasks failed: %w", err)
	}

	log.Printf("Monthly tasks for %s: Processed=%d, Charged=%d, Blocked=%d, Failed=%d",
		j.month, report.Processed, report.Charged, report.Blocked, report.Failed)

	if report.Failed > 0 {
		return fmt.Errorf("monthly tasks completed with %d failed products", report.Failed)
	}
	return nil
}

func (j *MonthlyTasksJob) Key() string {
	return "monthly:" + j.month
}

func (j *MonthlyTasksJob) Description() string {
	return fmt.Sprintf("Monthly tasks for %s", j.month)
}

// CompensationRetryJob replays up to limit parked compensations
type CompensationRetryJob struct {
	retrier Retrier
	limit   int
}

func NewCompensationRetryJob(retrier Retrier, limit int) *CompensationRetryJob {
	return &CompensationRetryJob{retrier: retrier, limit: limit}
}

func (j *CompensationRetryJob) Execute(ctx context.Context) error {
	result, err := j.retrier.RetryPending(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("compensation retry failed: %w", err)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d compensations still pending", result.Failed, result.Attempted)
	}
	return nil
}

func (j *CompensationRetryJob) Key() string {
	return "compensations"
}

func (j *CompensationRetryJob) Description() string {
	return fmt.Sprintf("Retry up to %d parked compensations", j.limit)
}

// MonthlyEntry schedules one MonthlyTasksJob per firing.
func MonthlyEntry(trigger Trigger, runner MonthlyRunner, now func() time.Time) Entry {
	return Entry{
		Name:    EntryMonthlyTasks,
		Trigger: trigger,
		Jobs: func(ctx context.Context) ([]Job, error) {
			return []Job{NewMonthlyTasksJob(runner, now())}, nil
		},
	}
}

// CompensationEntry schedules one CompensationRetryJob per firing.
func CompensationEntry(trigger Trigger, retrier Retrier, limit int) Entry {
	return Entry{
		Name:    EntryCompensationRetries,
		Trigger: trigger,
		Jobs: func(ctx context.Context) ([]Job, error) {
			return []Job{NewCompensationRetryJob(retrier, limit)}, nil
		},
	}
}
