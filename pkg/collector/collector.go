package collector

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go-softedge/pkg/common"
	"go-softedge/pkg/stats"
)

// Queue is the part of the job transport the collector needs.
type Queue interface {
	ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error)
	AckResult(ctx context.Context, id string) error
	MarkResultReceived(ctx context.Context, runID, jobID string) (bool, error)
	ReceivedCount(ctx context.Context, runID string) (int64, error)
	GetRunInfo(ctx context.Context, runID string) (*common.RunInfo, error)
}

type Collector struct {
	queue       Queue
	collectorID string
	reportDir   string
	readBlock   time.Duration
	runs        map[string]*RunProgress
	mutex       sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// RunProgress tracks one run. received mirrors the shared received set, so it
// survives collector restarts; results only holds what this collector saw.
type RunProgress struct {
	info       *common.RunInfo
	results    []*common.ResultMessage
	seen       map[string]bool
	received   int64
	completed  bool
	reportPath string
	mutex      sync.Mutex
}

func NewCollector(q Queue, collectorID, reportDir string) *Collector {
	ctx, cancel := context.WithCancel(context.Background())

	return &Collector{
		queue:       q,
		collectorID: collectorID,
		reportDir:   reportDir,
		readBlock:   5 * time.Second,
		runs:        make(map[string]*RunProgress),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (c *Collector) Start() {
	var wg sync.WaitGroup

	wg.Add(1)
	go c.resultProcessor(&wg)

	wg.Add(1)
	go c.checkpointMonitor(&wg)

	log.Printf("Collector %s started", c.collectorID)
	wg.Wait()
}

func (c *Collector) Stop() {
	log.Println("Collector: Shutting down...")
	c.cancel()
}

// Report returns the report path of a completed run.
func (c *Collector) Report(runID string) (string, bool) {
	c.mutex.RLock()
	run, ok := c.runs[runID]
	c.mutex.RUnlock()
	if !ok {
		return "", false
	}

	run.mutex.Lock()
	defer run.mutex.Unlock()
	return run.reportPath, run.completed
}

func (c *Collector) resultProcessor(wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("collector-%s", c.collectorID)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msgID, result, err := c.queue.ReadResult(c.ctx, consumer, c.readBlock)
		if err != nil {
			if c.ctx.Err() == nil {
				log.Printf("Collector read error: %v", err)
			}
			continue
		}
		if result == nil {
			continue
		}

		if err := c.processResult(result); err != nil {
			log.Printf("Collector: failed to process result for job %s: %v", result.JobID, err)
			continue
		}
		_ = c.queue.AckResult(c.ctx, msgID)
	}
}

func (c *Collector) processResult(result *common.ResultMessage) error {
	if result.Error != "" {
		log.Printf("Collector: job %s failed on %s: %s", result.JobID, result.WorkerID, result.Error)
	}

	// Jobs queued one by one (e.g. over HTTP) do not belong to a run.
	if result.RunID == "" {
		return nil
	}

	run, err := c.getOrCreateRun(result.RunID)
	if err != nil {
		return err
	}

	added, err := c.queue.MarkResultReceived(c.ctx, result.RunID, result.JobID)
	if err != nil {
		return fmt.Errorf("failed to mark result received: %w", err)
	}

	run.mutex.Lock()
	defer run.mutex.Unlock()

	if run.completed {
		return nil
	}
	if !added {
		log.Printf("Job %s for run %s already collected (idempotent)", result.JobID, result.RunID)
	}
	if !run.seen[result.JobID] {
		run.seen[result.JobID] = true
		run.results = append(run.results, result)
	}

	received, err := c.queue.ReceivedCount(c.ctx, result.RunID)
	if err != nil {
		return fmt.Errorf("failed to count results: %w", err)
	}
	run.received = received

	if received < int64(run.info.TotalJobs) {
		log.Printf("Run %s progress: %d/%d images", result.RunID, received, run.info.TotalJobs)
		return nil
	}

	return c.finish(run)
}

// finish writes the report of a run whose results have all arrived. The
// caller holds run.mutex. On failure the run stays incomplete so a
// redelivered result or the next checkpoint tries again.
func (c *Collector) finish(run *RunProgress) error {
	data := stats.Summarize(run.info, run.results, time.Now())
	data.ImagesReceived = int(run.received)

	path, err := stats.WritePerformanceResults(c.reportDir, data)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	run.completed = true
	run.reportPath = path

	if len(run.results) < int(run.received) {
		log.Printf("Run %s: %d results were collected before this collector started",
			run.info.ID, int(run.received)-len(run.results))
	}
	log.Printf("Run %s complete: %d processed, %d failed in %.2fs (report %s)",
		run.info.ID, data.ImagesProcessed, data.ImagesFailed, data.TotalTime, path)

	return nil
}

func (c *Collector) getOrCreateRun(runID string) (*RunProgress, error) {
	c.mutex.RLock()
	if run, exists := c.runs[runID]; exists {
		c.mutex.RUnlock()
		return run, nil
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if run, exists := c.runs[runID]; exists {
		return run, nil
	}

	info, err := c.queue.GetRunInfo(c.ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run info: %w", err)
	}

	run := &RunProgress{info: info, seen: make(map[string]bool)}
	c.runs[runID] = run

	log.Printf("Tracking run %s (%d images expected)", runID, info.TotalJobs)
	return run, nil
}

func (c *Collector) checkpointMonitor(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.checkpoint()
		}
	}
}

// checkpoint logs progress and retries reports that failed to write.
func (c *Collector) checkpoint() {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var incompleteCount int
	for id, run := range c.runs {
		run.mutex.Lock()
		if !run.completed && run.received >= int64(run.info.TotalJobs) {
			if err := c.finish(run); err != nil {
				log.Printf("Collector: run %s: %v", id, err)
			}
		}
		if !run.completed {
			incompleteCount++
			log.Printf("Run %s progress: %d/%d images received", id, run.received, run.info.TotalJobs)
		}
		run.mutex.Unlock()
	}

	if len(c.runs) > 0 {
		log.Printf("Collector status: %d active runs, %d incomplete", len(c.runs), incompleteCount)
	}
}
