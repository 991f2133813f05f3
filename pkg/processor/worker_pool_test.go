package processor

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-softedge/pkg/common"
	"go-softedge/pkg/queue"
)

type fakeQueue struct {
	mu      sync.Mutex
	pending []queue.Delivery
	stale   []queue.Delivery
	acked   []string
	results []*common.ResultMessage
	infos   map[string]*common.JobInfo
	minIdle []time.Duration
	done    chan struct{}
	want    int
}

func newFakeQueue(want int, jobs ...*common.JobMessage) *fakeQueue {
	q := &fakeQueue{infos: make(map[string]*common.JobInfo), done: make(chan struct{}), want: want}
	for i, job := range jobs {
		q.pending = append(q.pending, queue.Delivery{ID: string(rune('a' + i)), Job: job})
	}
	return q
}

func (q *fakeQueue) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	q.mu.Lock()
	if len(q.pending) > 0 {
		d := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		return d.ID, d.Job, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(block):
	}
	return "", nil, nil
}

func (q *fakeQueue) AckJob(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, id)
	if len(q.acked) == q.want {
		close(q.done)
	}
	return nil
}

func (q *fakeQueue) AddResult(ctx context.Context, res *common.ResultMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, res)
	return "r", nil
}

func (q *fakeQueue) ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.minIdle = append(q.minIdle, minIdle)
	claimed := q.stale
	q.stale = nil
	return claimed, nil
}

func (q *fakeQueue) StoreJobInfo(ctx context.Context, info *common.JobInfo) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.infos[info.Job.ID] = info
	return nil
}

func writeFixture(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		img.SetNRGBA(0, y, color.NRGBA{G: 255, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func runPool(t *testing.T, q *fakeQueue) *WorkerPool {
	t.Helper()
	wp := NewWorkerPool(q, 2, "test")
	wp.SetTimeouts(10*time.Millisecond, 20*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		wp.Start()
		close(stopped)
	}()

	select {
	case <-q.done:
	case <-time.After(10 * time.Second):
		t.Error("timed out waiting for jobs")
	}
	wp.Stop()
	<-stopped
	return wp
}

func TestWorkerPoolProcessesJobs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeFixture(t, in)

	ok := &common.JobMessage{Type: common.JOB_TYPE_PROCESS, Job: &common.Job{
		ID: "ok", RunID: "run", InputPath: in, OutputPath: filepath.Join(dir, "out.png"), Radius: 1,
	}}
	missing := &common.JobMessage{Type: common.JOB_TYPE_PROCESS, Job: &common.Job{
		ID: "missing", RunID: "run", InputPath: filepath.Join(dir, "nope.png"), OutputPath: filepath.Join(dir, "x.png"), Radius: 1,
	}}
	invalid := &common.JobMessage{Type: "bogus"}

	q := newFakeQueue(3, ok, missing, invalid)
	wp := runPool(t, q)

	if got := wp.Processed(); got != 2 {
		t.Errorf("Processed() = %d, want 2", got)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.results) != 2 {
		t.Fatalf("results = %d, want 2", len(q.results))
	}
	byID := map[string]*common.ResultMessage{}
	for _, r := range q.results {
		byID[r.JobID] = r
	}

	if r := byID["ok"]; r == nil || r.Error != "" || r.Width != 4 || r.ColorExtrapolated == 0 {
		t.Errorf("ok result = %+v", r)
	}
	if r := byID["missing"]; r == nil || r.Error == "" {
		t.Errorf("missing result = %+v", r)
	}
	if q.infos["ok"].Status != common.StatusCompleted {
		t.Errorf("ok status = %s", q.infos["ok"].Status)
	}
	if q.infos["missing"].Status != common.StatusFailed {
		t.Errorf("missing status = %s", q.infos["missing"].Status)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.png")); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestRetryMonitorHandlesClaimedJobs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeFixture(t, in)

	q := newFakeQueue(1)
	q.stale = []queue.Delivery{{ID: "stale-1", Job: &common.JobMessage{Type: common.JOB_TYPE_PROCESS, Job: &common.Job{
		ID: "stale", InputPath: in, OutputPath: filepath.Join(dir, "out.png"), Radius: 2,
	}}}}
	runPool(t, q)

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.acked) != 1 || q.acked[0] != "stale-1" {
		t.Errorf("acked = %v, want [stale-1]", q.acked)
	}
	if len(q.results) != 1 || q.results[0].JobID != "stale" {
		t.Errorf("results = %+v", q.results)
	}
	for _, idle := range q.minIdle {
		if idle != 20*time.Millisecond {
			t.Errorf("claimed with min idle %v, want the configured 20ms", idle)
		}
	}
}

func TestDefaultVisibilityOutlastsSlowJobs(t *testing.T) {
	wp := NewWorkerPool(newFakeQueue(0), 1, "test")
	if wp.visibility != common.JOB_VISIBILITY {
		t.Errorf("visibility = %v, want %v", wp.visibility, common.JOB_VISIBILITY)
	}
	if wp.visibility < 5*time.Minute {
		t.Errorf("visibility %v would reclaim jobs that are still running", wp.visibility)
	}
}
