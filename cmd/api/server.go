package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"txengine/internal/infrastructure/postgres/listener"
	"txengine/internal/interfaces/scheduler"
	"txengine/internal/shared/config"
)

// StartServer creates and starts the API server.
func StartServer(handler http.Handler, cfg *config.Config) *http.Server {
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	return srv
}

// GracefulShutdown stops accepting requests, then stops background workers.
func GracefulShutdown(srv *http.Server, sched *scheduler.Scheduler, l *listener.CompensationListener, timeout time.Duration) {
	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if sched != nil {
		sched.Shutdown(timeout)
	}

	if l != nil {
		l.Stop()
	}

	log.Println("Server stopped")
}

// NewScheduler builds the monthly batch and compensation retry schedule.
func NewScheduler(deps *Dependencies, cfg *config.Config) (*scheduler.Scheduler, error) {
	monthlyTrigger, err := scheduler.ParseMonthlyTrigger(cfg.Scheduler.Monthly)
	if err != nil {
		return nil, err
	}
	entries := []scheduler.Entry{
		scheduler.MonthlyEntry(monthlyTrigger, deps.Monthly, deps.Now),
	}

	if len(cfg.Scheduler.CompensationTimes) > 0 {
		retryTrigger, err := scheduler.ParseDailyTrigger(cfg.Scheduler.CompensationTimes)
		if err != nil {
			return nil, err
		}
		entries = append(entries, scheduler.CompensationEntry(retryTrigger, deps.Saga, cfg.Scheduler.CompensationLimit))
	}

	return scheduler.NewScheduler(scheduler.SchedulerConfig{
		Entries:      entries,
		WorkerCount:  cfg.Scheduler.WorkerCount,
		JobDelay:     cfg.Scheduler.JobDelay,
		QueueSize:    cfg.Scheduler.QueueSize,
		RunOnStartup: cfg.Scheduler.RunOnStartup,
		Location:     cfg.Location,
	})
}
