package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go-softedge/pkg/collector"
	"go-softedge/pkg/common"
	"go-softedge/pkg/coordinator"
	"go-softedge/pkg/processor"
	"go-softedge/pkg/queue"
	"go-softedge/pkg/server"
	"go-softedge/pkg/softedge"
)

func main() {
	var (
		redisAddr  = flag.String("redis", "localhost:6379", "Redis address (empty disables the queue in http mode)")
		inputDir   = flag.String("input", "/data/input", "Input directory")
		outputDir  = flag.String("output", "/data/output", "Output directory")
		reportDir  = flag.String("reports", "logs", "Directory for run reports")
		radius     = flag.Int("radius", softedge.DefaultRadius, "Kernel radius")
		numWorkers = flag.Int("workers", 4, "Number of job workers")
		httpAddr   = flag.String("addr", ":8088", "HTTP listen address")
		maxUpload  = flag.Int64("max-upload", 64<<20, "Maximum upload size in bytes")
		visibility = flag.Duration("visibility", common.JOB_VISIBILITY, "How long a job may run unacknowledged before another worker claims it")
		mode       = flag.String("mode", "all", "Mode: coordinator, worker, collector, http, or all")
	)
	flag.Parse()

	if *radius < 0 {
		log.Fatalf("Invalid radius %d: must be non-negative", *radius)
	}

	hostname, _ := os.Hostname()
	serviceID := fmt.Sprintf("%s-%d", hostname, time.Now().Unix())

	log.Printf("Starting softedge service")
	log.Printf("Mode: %s, Service ID: %s", *mode, serviceID)
	log.Printf("Redis: %s, Workers: %d, Radius: %d", *redisAddr, *numWorkers, *radius)

	ctx := context.Background()

	var redisClient *queue.RedisClient
	if *redisAddr != "" {
		client, err := queue.NewRedisClient(ctx, *redisAddr)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()

		if err := client.EnsureGroups(ctx); err != nil {
			log.Printf("Failed to ensure Redis groups: %v", err)
		}
		redisClient = client
	} else if *mode != "http" {
		log.Fatalf("Mode %s requires -redis", *mode)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	switch *mode {
	case "coordinator":
		runCoordinator(ctx, redisClient, *inputDir, *outputDir, *radius)

	case "worker":
		workerPool := newWorkerPool(redisClient, *numWorkers, serviceID, *visibility)

		wg.Add(1)
		go func() {
			defer wg.Done()
			workerPool.Start()
		}()

		<-sigChan
		workerPool.Stop()
		wg.Wait()
		log.Printf("Worker: %d jobs handled", workerPool.Processed())

	case "collector":
		resultCollector := collector.NewCollector(redisClient, serviceID, *reportDir)

		wg.Add(1)
		go func() {
			defer wg.Done()
			resultCollector.Start()
		}()

		<-sigChan
		resultCollector.Stop()

	case "http":
		srv := newHTTPServer(*httpAddr, redisClient, *radius, *maxUpload)
		startHTTP(srv, &wg)

		<-sigChan
		shutdownHTTP(srv)

	case "all":
		if len(coordinator.FindImages(*inputDir)) == 0 {
			log.Printf("No images found in %s, waiting for HTTP jobs", *inputDir)
		}

		workerPool := newWorkerPool(redisClient, *numWorkers, serviceID, *visibility)
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerPool.Start()
		}()

		resultCollector := collector.NewCollector(redisClient, serviceID, *reportDir)
		wg.Add(1)
		go func() {
			defer wg.Done()
			resultCollector.Start()
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			// Let the consumers join their groups before jobs arrive.
			time.Sleep(2 * time.Second)
			runCoordinator(ctx, redisClient, *inputDir, *outputDir, *radius)
		}()

		srv := newHTTPServer(*httpAddr, redisClient, *radius, *maxUpload)
		startHTTP(srv, &wg)

		<-sigChan
		log.Println("Shutting down all components...")
		shutdownHTTP(srv)
		workerPool.Stop()
		resultCollector.Stop()

	default:
		log.Fatalf("Invalid mode: %s. Use coordinator, worker, collector, http, or all", *mode)
	}

	wg.Wait()
	log.Println("Service shutdown complete")
}

func newWorkerPool(redisClient *queue.RedisClient, numWorkers int, serviceID string, visibility time.Duration) *processor.WorkerPool {
	workerPool := processor.NewWorkerPool(redisClient, numWorkers, serviceID)
	workerPool.SetTimeouts(5*time.Second, visibility)
	return workerPool
}

func runCoordinator(ctx context.Context, redisClient *queue.RedisClient, inputDir, outputDir string, radius int) {
	coord := coordinator.NewCoordinator(redisClient, radius)

	startTime := time.Now()
	run, err := coord.ProcessDirectory(ctx, inputDir, outputDir)
	if err != nil {
		log.Printf("Coordinator failed: %v", err)
		return
	}
	log.Printf("Coordinator: Run %s with %d images queued in %.2fs",
		run.ID, run.TotalJobs, time.Since(startTime).Seconds())
}

func newHTTPServer(addr string, redisClient *queue.RedisClient, radius int, maxUpload int64) *http.Server {
	cfg := server.Config{
		Radius:         radius,
		MaxUploadBytes: maxUpload,
	}
	if redisClient != nil {
		cfg.Jobs = coordinator.NewCoordinator(redisClient, radius)
		cfg.Status = redisClient
	}

	return &http.Server{
		Addr:    addr,
		Handler: server.SetupRouter(cfg),
	}
}

func startHTTP(srv *http.Server, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
}
