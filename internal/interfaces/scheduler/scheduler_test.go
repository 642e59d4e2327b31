package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"txengine/internal/domain/monthly"
	"txengine/internal/domain/transaction"
)

// MockJob counts executions
type MockJob struct {
	key     string
	err     error
	runs    *int32
	started chan struct{}
}

func (j *MockJob) Execute(ctx context.Context) error {
	atomic.AddInt32(j.runs, 1)
	if j.started != nil {
		j.started <- struct{}{}
	}
	return j.err
}

func (j *MockJob) Key() string         { return j.key }
func (j *MockJob) Description() string { return "mock job " + j.key }

// MockMonthlyRunner implements MonthlyRunner for testing
type MockMonthlyRunner struct {
	RunFunc func(ctx context.Context) (*monthly.Report, error)
}

func (m *MockMonthlyRunner) Run(ctx context.Context) (*monthly.Report, error) {
	return m.RunFunc(ctx)
}

// MockRetrier implements Retrier for testing
type MockRetrier struct {
	mu     sync.Mutex
	limits []int
	result *transaction.RetryResult
	err    error
}

func (m *MockRetrier) RetryPending(ctx context.Context, limit int) (*transaction.RetryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, limit)
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &transaction.RetryResult{}, nil
	}
	return m.result, nil
}

type alwaysTrigger struct{}

func (alwaysTrigger) Matches(time.Time) bool { return true }
func (alwaysTrigger) String() string         { return "always" }

func TestNewScheduler_RejectsIncompleteEntries(t *testing.T) {
	if _, err := NewScheduler(SchedulerConfig{}); err == nil {
		t.Error("expected error without entries")
	}
	_, err := NewScheduler(SchedulerConfig{Entries: []Entry{{Name: "x", Trigger: alwaysTrigger{}}}})
	if err == nil {
		t.Error("expected error for entry without job provider")
	}
}

func TestScheduler_DueFiresOncePerMinute(t *testing.T) {
	noJobs := func(ctx context.Context) ([]Job, error) { return nil, nil }
	s, err := NewScheduler(SchedulerConfig{
		Entries: []Entry{
			{Name: "monthly", Trigger: MonthlyTrigger{Day: 0, At: ScheduleTime{23, 0}}, Jobs: noJobs},
			{Name: "daily", Trigger: DailyTrigger{Times: []ScheduleTime{{23, 0}, {3, 0}}}, Jobs: noJobs},
		},
		WorkerCount: 1,
		QueueSize:   1,
		Location:    time.UTC,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	monthEnd := time.Date(2026, 3, 31, 23, 0, 5, 0, time.UTC)
	if got := s.due(monthEnd); len(got) != 2 {
		t.Fatalf("expected both entries due at month end, got %d", len(got))
	}
	if got := s.due(monthEnd.Add(30 * time.Second)); len(got) != 0 {
		t.Errorf("expected no entries due again in the same minute, got %d", len(got))
	}
	if got := s.due(time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)); len(got) != 1 || got[0].Name != "daily" {
		t.Errorf("expected only the daily entry at 03:00, got %v", got)
	}
}

func TestScheduler_EvaluatesInLocation(t *testing.T) {
	lima := time.FixedZone("PET", -5*60*60)
	noJobs := func(ctx context.Context) ([]Job, error) { return nil, nil }
	s, err := NewScheduler(SchedulerConfig{
		Entries:  []Entry{{Name: "monthly", Trigger: MonthlyTrigger{Day: 0, At: ScheduleTime{23, 0}}, Jobs: noJobs}},
		Location: lima,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 23:00 in Lima on March 31 is 04:00 UTC on April 1
	if got := s.due(time.Date(2026, 4, 1, 4, 0, 0, 0, time.UTC)); len(got) != 1 {
		t.Errorf("expected entry due at local month end, got %d", len(got))
	}
}

func TestScheduler_TriggerNowSubmitsJobs(t *testing.T) {
	var runs int32
	started := make(chan struct{}, 1)
	s, err := NewScheduler(SchedulerConfig{
		Entries: []Entry{{
			Name:    "manual",
			Trigger: DailyTrigger{Times: []ScheduleTime{{0, 0}}},
			Jobs: func(ctx context.Context) ([]Job, error) {
				return []Job{&MockJob{key: "k", runs: &runs, started: started}}, nil
			},
		}},
		WorkerCount: 1,
		QueueSize:   4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Start()
	defer s.Shutdown(time.Second)

	if err := s.TriggerNow("manual"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected job to run")
	}

	if err := s.TriggerNow("unknown"); err == nil {
		t.Error("expected error for unknown entry")
	}
}

func TestWorkerPool_ProcessesAndDrains(t *testing.T) {
	var runs int32
	pool := NewWorkerPool(3, 0, 10)
	pool.Start()

	jobs := make([]Job, 0, 6)
	for i := 0; i < 6; i++ {
		var err error
		if i%2 == 0 {
			err = errors.New("boom")
		}
		jobs = append(jobs, &MockJob{key: "k", err: err, runs: &runs})
	}
	if n := pool.SubmitBatch(jobs); n != 6 {
		t.Fatalf("expected 6 jobs accepted, got %d", n)
	}

	pool.Shutdown()

	if got := atomic.LoadInt32(&runs); got != 6 {
		t.Errorf("expected 6 jobs executed before shutdown, got %d", got)
	}
}

func TestWorkerPool_QueueFull(t *testing.T) {
	var runs int32
	pool := NewWorkerPool(1, 0, 1)

	if err := pool.Submit(&MockJob{key: "a", runs: &runs}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pool.Submit(&MockJob{key: "b", runs: &runs}); err == nil {
		t.Error("expected queue full error")
	}

	pool.Start()
	pool.Shutdown()
}

func TestMonthlyTasksJob(t *testing.T) {
	tests := []struct {
		name    string
		report  *monthly.Report
		runErr  error
		wantErr bool
	}{
		{"clean run", &monthly.Report{Processed: 4, Charged: 2}, nil, false},
		{"partial failure", &monthly.Report{Processed: 4, Failed: 1}, nil, true},
		{"list failure", nil, errors.New("registry down"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockMonthlyRunner{
				RunFunc: func(ctx context.Context) (*monthly.Report, error) {
					return tt.report, tt.runErr
				},
			}
			job := NewMonthlyTasksJob(runner, time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC))

			if err := job.Execute(context.Background()); (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if job.Key() != "monthly:2026-03" {
				t.Errorf("unexpected key %q", job.Key())
			}
		})
	}
}

func TestCompensationRetryJob(t *testing.T) {
	retrier := &MockRetrier{result: &transaction.RetryResult{Attempted: 3, Resolved: 2, Failed: 1}}
	job := NewCompensationRetryJob(retrier, 25)

	if err := job.Execute(context.Background()); err == nil {
		t.Error("expected error while compensations remain pending")
	}
	if len(retrier.limits) != 1 || retrier.limits[0] != 25 {
		t.Errorf("expected one pass with limit 25, got %v", retrier.limits)
	}

	retrier = &MockRetrier{result: &transaction.RetryResult{Attempted: 2, Resolved: 2}}
	if err := NewCompensationRetryJob(retrier, 25).Execute(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEntries(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC) }
	monthlyEntry := MonthlyEntry(alwaysTrigger{}, &MockMonthlyRunner{}, now)
	jobs, err := monthlyEntry.Jobs(context.Background())
	if err != nil || len(jobs) != 1 || jobs[0].Key() != "monthly:2026-03" {
		t.Errorf("unexpected monthly jobs: %v, %v", jobs, err)
	}

	retryEntry := CompensationEntry(alwaysTrigger{}, &MockRetrier{}, 10)
	jobs, err = retryEntry.Jobs(context.Background())
	if err != nil || len(jobs) != 1 || jobs[0].Key() != "compensations" {
		t.Errorf("unexpected retry jobs: %v, %v", jobs, err)
	}
}
