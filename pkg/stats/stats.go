package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-softedge/pkg/common"
)

// PerformanceData holds timing and outcome data for one run
type PerformanceData struct {
	RunID           string
	ImagesReceived  int
	ImagesProcessed int
	ImagesFailed    int
	Radius          int
	TotalTime       float64
	AverageTime     float64
	Timestamp       time.Time

	AlphaUpdated      int64
	ColorExtrapolated int64

	Results []*common.ResultMessage
}

// Summarize builds the report for a finished run
func Summarize(info *common.RunInfo, results []*common.ResultMessage, end time.Time) PerformanceData {
	data := PerformanceData{
		RunID:          info.ID,
		ImagesReceived: len(results),
		Radius:         info.Radius,
		TotalTime:      end.Sub(info.StartTime).Seconds(),
		Timestamp:      info.StartTime,
		Results:        results,
	}

	var processTime float64
	for _, r := range results {
		if r.Error != "" {
			data.ImagesFailed++
			continue
		}
		data.ImagesProcessed++
		data.AlphaUpdated += r.AlphaUpdated
		data.ColorExtrapolated += r.ColorExtrapolated
		processTime += r.ProcessTime
	}
	if data.ImagesProcessed > 0 {
		data.AverageTime = processTime / float64(data.ImagesProcessed)
	}

	return data
}

// WritePerformanceResults writes the report into dir and returns its path
func WritePerformanceResults(dir string, data PerformanceData) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	timestamp := data.Timestamp.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("softedge_%s_%s.txt", timestamp, shortID(data.RunID)))

	file, err := os.Create(resultsFile)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "=== Soft Edge Run %s ===\n", data.RunID)
	fmt.Fprintf(file, "Timestamp: %s\n\n", data.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(file, "Images received: %d\n", data.ImagesReceived)
	fmt.Fprintf(file, "Images processed: %d\n", data.ImagesProcessed)
	fmt.Fprintf(file, "Images failed: %d\n", data.ImagesFailed)
	fmt.Fprintf(file, "Kernel radius: %d\n", data.Radius)
	fmt.Fprintf(file, "Total execution time: %.2fs\n", data.TotalTime)
	fmt.Fprintf(file, "Average time per image: %.2fs\n", data.AverageTime)
	fmt.Fprintf(file, "Alpha rewritten: %d pixels\n", data.AlphaUpdated)
	fmt.Fprintf(file, "Color extrapolated: %d pixels\n", data.ColorExtrapolated)

	fmt.Fprintf(file, "\nOutput files:\n")
	for i, r := range data.Results {
		if r.Error != "" {
			fmt.Fprintf(file, "  %d. %s FAILED: %s\n", i+1, r.OutputPath, r.Error)
			continue
		}
		fmt.Fprintf(file, "  %d. %s (%dx%d, %.2fs, worker %s)\n", i+1, r.OutputPath, r.Width, r.Height, r.ProcessTime, r.WorkerID)
	}

	return resultsFile, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
