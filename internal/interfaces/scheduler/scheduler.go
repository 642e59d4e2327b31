package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// JobProvider builds the jobs for one firing of an entry.
type JobProvider func(ctx context.Context) ([]Job, error)

// Entry pairs a trigger with the jobs it submits.
type Entry struct {
	Name    string
	Trigger Trigger
	Jobs    JobProvider
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Entries      []Entry
	WorkerCount  int
	JobDelay     time.Duration
	QueueSize    int
	RunOnStartup bool
	// Location is the zone triggers are evaluated in. Defaults to time.Local.
	Location *time.Location
}

// Scheduler manages periodic execution of jobs.
type Scheduler struct {
	workerPool   *WorkerPool
	entries      []Entry
	runOnStartup bool
	location     *time.Location

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun map[string]string
	mu      sync.Mutex
}

// NewScheduler creates a new scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	if len(config.Entries) == 0 {
		return nil, fmt.Errorf("at least one schedule entry is required")
	}
	for _, e := range config.Entries {
		if e.Name == "" || e.Trigger == nil || e.Jobs == nil {
			return nil, fmt.Errorf("schedule entry %q is incomplete", e.Name)
		}
	}

	location := config.Location
	if location == nil {
		location = time.Local
	}

	workerPool := NewWorkerPool(config.WorkerCount, config.JobDelay, config.QueueSize)
	ctx, cancel := context.WithCancel(context.Background())

	for _, e := range config.Entries {
		log.Printf("Scheduler entry %s: %s (%s)", e.Name, e.Trigger, location)
	}
	log.Printf("Worker pool: %d workers, %v delay between jobs", config.WorkerCount, config.JobDelay)

	return &Scheduler{
		workerPool:   workerPool,
		entries:      config.Entries,
		runOnStartup: config.RunOnStartup,
		location:     location,
		ctx:          ctx,
		cancel:       cancel,
		lastRun:      make(map[string]string),
	}, nil
}

// Start launches the scheduler and worker pool.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	s.workerPool.Start()

	if s.runOnStartup {
		log.Println("Scheduler: Running every entry on startup")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for _, e := range s.entries {
				s.runEntry(e)
			}
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	log.Println("Scheduler started")
}

// scheduleLoop is the main scheduling loop.
func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	log.Println("Scheduler loop started, checking every minute")

	for {
		select {
		case <-s.ctx.Done():
			log.Println("Scheduler loop: Context cancelled, shutting down")
			return

		case now := <-ticker.C:
			for _, e := range s.due(now) {
				log.Printf("Scheduler: %s triggered at %s", e.Name, now.In(s.location).Format("2006-01-02 15:04"))
				s.runEntry(e)
			}
		}
	}
}

// due returns the entries whose trigger matches now. An entry fires at most
// once per minute.
func (s *Scheduler) due(now time.Time) []Entry {
	local := now.In(s.location)
	currentKey := local.Format("2006-01-02-15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Entry
	for _, e := range s.entries {
		if s.lastRun[e.Name] == currentKey || !e.Trigger.Matches(local) {
			continue
		}
		s.lastRun[e.Name] = currentKey
		due = append(due, e)
	}
	return due
}

// runEntry executes the entry's job provider and submits jobs to the worker pool.
func (s *Scheduler) runEntry(e Entry) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	jobs, err := e.Jobs(ctx)
	if err != nil {
		log.Printf("Scheduler: Failed to fetch %s jobs: %v", e.Name, err)
		return
	}

	if len(jobs) == 0 {
		log.Printf("Scheduler: No %s jobs to process", e.Name)
		return
	}

	log.Printf("Scheduler: Submitting %d %s jobs to worker pool", len(jobs), e.Name)
	s.workerPool.SubmitBatch(jobs)
}

// Shutdown gracefully stops the scheduler and worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	log.Println("Scheduler: Initiating graceful shutdown...")

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Scheduler: Scheduler loop stopped gracefully")
	case <-time.After(timeout):
		log.Println("Scheduler: Timeout waiting for scheduler loop to stop")
	}

	s.workerPool.ShutdownWithTimeout(timeout)

	log.Println("Scheduler: Shutdown complete")
}

// TriggerNow manually runs the named entry immediately.
func (s *Scheduler) TriggerNow(name string) error {
	for _, e := range s.entries {
		if e.Name == name {
			log.Printf("Scheduler: Manual trigger of %s", name)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.runEntry(e)
			}()
			return nil
		}
	}
	return fmt.Errorf("unknown schedule entry %q", name)
}
