package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/trading-ingest/internal/jobs"
)

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []*jobs.BatchRunJob
}

func (p *recordingPublisher) PublishBatchRun(_ context.Context, job *jobs.BatchRunJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

func TestSchedule_EnqueuesImmediatelyAndPerTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &recordingPublisher{}

	done := make(chan struct{})
	go func() {
		schedule(ctx, pub, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, job := range pub.jobs {
		assert.Equal(t, "scheduler", job.RequestedBy)
	}
}
