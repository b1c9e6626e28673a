// internal/notifications/scheduler.go

package notifications

import (
	"context"
	"log"
	"time"
)

// QueueSweeper periodically claims and dispatches due notifications
type QueueSweeper struct {
	service  Service
	interval time.Duration
	stopCh   chan struct{}
}

// NewQueueSweeper creates a queue sweeper
func NewQueueSweeper(service Service, interval time.Duration) *QueueSweeper {
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &QueueSweeper{
		service:  service,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the sweeper loop
func (s *QueueSweeper) Start(ctx context.Context) {
	log.Printf("Starting notification queue sweeper with interval: %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopCh:
			log.Println("Stopping notification queue sweeper")
			return
		case <-ctx.Done():
			log.Println("Context cancelled, stopping notification queue sweeper")
			return
		}
	}
}

// Stop stops the sweeper
func (s *QueueSweeper) Stop() {
	close(s.stopCh)
}

func (s *QueueSweeper) sweep(ctx context.Context) {
	if err := s.service.ProcessQueue(ctx); err != nil {
		log.Printf("Error processing notification queue: %v", err)
	}
}

// CleanupJob deletes old terminal notifications on a fixed cadence
type CleanupJob struct {
	service      Service
	interval     time.Duration
	retentionAge time.Duration
	stopCh       chan struct{}
}

// NewCleanupJob creates a cleanup job
func NewCleanupJob(service Service, interval, retentionAge time.Duration) *CleanupJob {
	if interval == 0 {
		interval = 24 * time.Hour
	}
	if retentionAge == 0 {
		retentionAge = 90 * 24 * time.Hour
	}

	return &CleanupJob{
		service:      service,
		interval:     interval,
		retentionAge: retentionAge,
		stopCh:       make(chan struct{}),
	}
}

// Start starts the cleanup loop
func (j *CleanupJob) Start(ctx context.Context) {
	log.Printf("Starting notification cleanup job with interval: %v, retention: %v", j.interval, j.retentionAge)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			j.cleanup(ctx)
		case <-j.stopCh:
			log.Println("Stopping notification cleanup job")
			return
		case <-ctx.Done():
			log.Println("Context cancelled, stopping notification cleanup job")
			return
		}
	}
}

// Stop stops the cleanup job
func (j *CleanupJob) Stop() {
	close(j.stopCh)
}

func (j *CleanupJob) cleanup(ctx context.Context) {
	startTime := time.Now()
	deleted, err := j.service.CleanupOld(ctx, j.retentionAge)
	if err != nil {
		log.Printf("Error cleaning up notifications: %v", err)
		return
	}
	log.Printf("Notification cleanup removed %d rows in %v", deleted, time.Since(startTime))
}
