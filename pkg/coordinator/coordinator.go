package coordinator

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-softedge/pkg/common"
	"go-softedge/pkg/imageio"
)

const outputSuffix = "_softedge"

var inputPatterns = []string{"*.png", "*.tif", "*.tiff", "*.bmp", "*.webp", "*.gif", "*.jpg", "*.jpeg"}

// Queue is the part of the job transport the coordinator needs.
type Queue interface {
	AddJob(ctx context.Context, job *common.JobMessage) (string, error)
	StoreRunInfo(ctx context.Context, info *common.RunInfo) error
	StoreJobInfo(ctx context.Context, info *common.JobInfo) error
}

type Coordinator struct {
	queue  Queue
	radius int
}

func NewCoordinator(queue Queue, radius int) *Coordinator {
	return &Coordinator{
		queue:  queue,
		radius: radius,
	}
}

// ProcessDirectory queues one job per image found in inputDir as a single run.
func (c *Coordinator) ProcessDirectory(ctx context.Context, inputDir, outputDir string) (*common.RunInfo, error) {
	inputs := FindImages(inputDir)
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no images found in %s", inputDir)
	}

	run := &common.RunInfo{
		ID:        uuid.New().String(),
		Radius:    c.radius,
		TotalJobs: len(inputs),
		StartTime: time.Now(),
	}

	jobs := make([]*common.Job, 0, len(inputs))
	for _, input := range inputs {
		output := OutputPath(input, outputDir)
		run.InputPaths = append(run.InputPaths, input)
		run.OutputPaths = append(run.OutputPaths, output)
		jobs = append(jobs, &common.Job{
			ID:         uuid.New().String(),
			RunID:      run.ID,
			InputPath:  input,
			OutputPath: output,
			Radius:     c.radius,
			CreatedAt:  run.StartTime,
		})
	}

	// Run info goes first so the collector knows how many results to expect.
	if err := c.queue.StoreRunInfo(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to store run info: %w", err)
	}

	log.Printf("Coordinator: Run %s queuing %d images (radius %d)", run.ID, len(jobs), c.radius)

	for _, job := range jobs {
		if err := c.Enqueue(ctx, job); err != nil {
			return run, err
		}
	}

	log.Printf("Coordinator: Run %s queued in %.2fs", run.ID, time.Since(run.StartTime).Seconds())
	return run, nil
}

// Enqueue records job as queued and publishes it. A job without an id gets one.
func (c *Coordinator) Enqueue(ctx context.Context, job *common.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	info := &common.JobInfo{
		Job:       job,
		Status:    common.StatusQueued,
		UpdatedAt: time.Now(),
	}
	if err := c.queue.StoreJobInfo(ctx, info); err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}

	msg := &common.JobMessage{Type: common.JOB_TYPE_PROCESS, Job: job}
	if _, err := c.queue.AddJob(ctx, msg); err != nil {
		return fmt.Errorf("failed to queue job %s: %w", job.ID, err)
	}
	return nil
}

// FindImages lists decodable images in dir, skipping earlier outputs.
func FindImages(dir string) []string {
	seen := make(map[string]bool)
	var images []string

	for _, pattern := range inputPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if strings.HasSuffix(name, outputSuffix) || seen[path] {
				continue
			}
			seen[path] = true
			images = append(images, path)
		}
	}

	sort.Strings(images)
	return images
}

// OutputPath names the result of input inside outputDir. Inputs in formats
// that cannot be written are written as PNG.
func OutputPath(input, outputDir string) string {
	ext := filepath.Ext(input)
	name := strings.TrimSuffix(filepath.Base(input), ext)
	if _, err := imageio.FormatFromPath(input); err != nil {
		ext = ".png"
	}
	return filepath.Join(outputDir, name+outputSuffix+ext)
}
