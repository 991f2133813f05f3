package processor

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go-softedge/pkg/common"
	"go-softedge/pkg/pipeline"
	"go-softedge/pkg/queue"
)

// Queue is the part of the job transport a worker pool needs.
type Queue interface {
	ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error)
	AckJob(ctx context.Context, id string) error
	AddResult(ctx context.Context, res *common.ResultMessage) (string, error)
	ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]queue.Delivery, error)
	StoreJobInfo(ctx context.Context, info *common.JobInfo) error
}

type WorkerPool struct {
	queue         Queue
	numWorkers    int
	pixelWorkers  int
	workerID      string
	readBlock     time.Duration
	visibility    time.Duration
	jobsProcessed atomic.Int64
	jobsFailed    atomic.Int64
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewWorkerPool(q Queue, numWorkers int, workerID string) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if numWorkers < 1 {
		numWorkers = 1
	}

	return &WorkerPool{
		queue:        q,
		numWorkers:   numWorkers,
		pixelWorkers: max(1, runtime.NumCPU()/numWorkers),
		workerID:     workerID,
		readBlock:    5 * time.Second,
		visibility:   common.JOB_VISIBILITY,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetTimeouts overrides how long a read blocks and how long a job may stay
// unacknowledged before the retry monitor claims it.
func (wp *WorkerPool) SetTimeouts(readBlock, visibility time.Duration) {
	wp.readBlock = readBlock
	wp.visibility = visibility
}

// Start runs the workers and the retry monitor until Stop is called.
func (wp *WorkerPool) Start() {
	var wg sync.WaitGroup

	for i := 0; i < wp.numWorkers; i++ {
		wg.Add(1)
		go wp.worker(i, &wg)
	}

	wg.Add(1)
	go wp.retryMonitor(&wg)

	log.Printf("WorkerPool: Started %d workers (%d pixel workers each)", wp.numWorkers, wp.pixelWorkers)
	wg.Wait()
	log.Printf("WorkerPool: Stopped after %d jobs (%d failed)", wp.jobsProcessed.Load(), wp.jobsFailed.Load())
}

func (wp *WorkerPool) Stop() {
	log.Println("WorkerPool: Shutting down...")
	wp.cancel()
}

// Processed returns the number of jobs handled so far, failed ones included.
func (wp *WorkerPool) Processed() int64 {
	return wp.jobsProcessed.Load()
}

func (wp *WorkerPool) worker(id int, wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("%s-worker-%d", wp.workerID, id)
	log.Printf("Worker %d started as consumer %s", id, consumer)

	for {
		select {
		case <-wp.ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		msgID, job, err := wp.queue.ReadJob(wp.ctx, consumer, wp.readBlock)
		if err != nil {
			if wp.ctx.Err() == nil {
				log.Printf("Worker %d read error: %v", id, err)
			}
			if msgID != "" {
				// Undecodable payload; it will never succeed.
				_ = wp.queue.AckJob(wp.ctx, msgID)
			}
			continue
		}
		if job == nil {
			continue
		}

		wp.handle(consumer, msgID, job)
	}
}

func (wp *WorkerPool) handle(consumer, msgID string, msg *common.JobMessage) {
	if msg == nil || msg.Type != common.JOB_TYPE_PROCESS || msg.Job == nil {
		log.Printf("%s: invalid job message %s", consumer, msgID)
		_ = wp.queue.AckJob(wp.ctx, msgID)
		return
	}

	result := wp.process(consumer, msg.Job)

	if _, err := wp.queue.AddResult(wp.ctx, result); err != nil {
		// Not acked, so the retry monitor will hand it out again.
		log.Printf("%s: failed to publish result for job %s: %v", consumer, msg.Job.ID, err)
		return
	}
	if err := wp.queue.AckJob(wp.ctx, msgID); err != nil {
		log.Printf("%s: failed to ack job %s: %v", consumer, msg.Job.ID, err)
	}

	if count := wp.jobsProcessed.Add(1); count%100 == 0 {
		log.Printf("WorkerPool: Processed %d jobs total", count)
	}
}

// process runs the pipeline for job. Failures are terminal and reported in
// the result rather than retried.
func (wp *WorkerPool) process(consumer string, job *common.Job) *common.ResultMessage {
	startTime := time.Now()

	res, err := pipeline.Run(wp.ctx, pipeline.Request{
		Input:   job.InputPath,
		Output:  job.OutputPath,
		Radius:  job.Radius,
		Workers: wp.pixelWorkers,
	})

	result := &common.ResultMessage{
		JobID:       job.ID,
		RunID:       job.RunID,
		OutputPath:  job.OutputPath,
		WorkerID:    consumer,
		ProcessTime: time.Since(startTime).Seconds(),
	}

	status := common.StatusCompleted
	if err != nil {
		status = common.StatusFailed
		result.Error = err.Error()
		wp.jobsFailed.Add(1)
		log.Printf("%s: job %s failed: %v", consumer, job.ID, err)
	} else {
		result.Width = res.Width
		result.Height = res.Height
		result.AlphaUpdated = res.Stats.AlphaUpdated
		result.ColorExtrapolated = res.Stats.ColorExtrapolated
		log.Printf("%s: job %s done (%dx%d, %d pixels extrapolated) in %.2fs",
			consumer, job.ID, res.Width, res.Height, res.Stats.ColorExtrapolated, result.ProcessTime)
	}

	info := &common.JobInfo{Job: job, Status: status, Result: result, UpdatedAt: time.Now()}
	if err := wp.queue.StoreJobInfo(wp.ctx, info); err != nil {
		log.Printf("%s: failed to store status for job %s: %v", consumer, job.ID, err)
	}

	return result
}

func (wp *WorkerPool) retryMonitor(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(wp.visibility)
	defer ticker.Stop()

	consumer := fmt.Sprintf("%s-retry-monitor", wp.workerID)

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			claimed, err := wp.queue.ClaimStaleJobs(wp.ctx, consumer, wp.visibility, 50)
			if err != nil {
				if wp.ctx.Err() == nil {
					log.Printf("Failed to claim stale jobs: %v", err)
				}
				continue
			}

			if len(claimed) > 0 {
				log.Printf("Claimed %d stale jobs for retry", len(claimed))
			}
			for _, d := range claimed {
				wp.handle(consumer, d.ID, d.Job)
			}
		}
	}
}
