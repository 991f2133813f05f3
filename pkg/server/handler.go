package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-softedge/pkg/channels"
	"go-softedge/pkg/common"
	"go-softedge/pkg/imageio"
	"go-softedge/pkg/pipeline"
	"go-softedge/pkg/queue"
)

var contentTypes = map[string]string{
	"png":  "image/png",
	"tiff": "image/tiff",
	"bmp":  "image/bmp",
	"jpeg": "image/jpeg",
}

// Enqueuer publishes a job to the batch workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *common.Job) error
}

// StatusStore looks up job status records.
type StatusStore interface {
	GetJobInfo(ctx context.Context, jobID string) (*common.JobInfo, error)
}

type Handler struct {
	jobs      Enqueuer
	status    StatusStore
	radius    int
	workers   int
	maxUpload int64
}

// ProcessHandler runs one pass over an uploaded image and returns the result.
func (h *Handler) ProcessHandler(c *gin.Context) {
	requestID := uuid.New().String()
	c.Header("X-Request-ID", requestID)

	radius := h.radius
	if v := c.PostForm("radius"); v != "" {
		r, err := strconv.Atoi(v)
		if err != nil || r < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "radius must be a non-negative integer",
			})
			return
		}
		radius = r
	}

	format := c.DefaultPostForm("format", "png")
	contentType, ok := contentTypes[format]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": fmt.Sprintf("unsupported output format %q", format),
		})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "Invalid request: " + err.Error(),
		})
		return
	}
	if h.maxUpload > 0 && fileHeader.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"code":    413,
			"message": fmt.Sprintf("image larger than %d bytes", h.maxUpload),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "Failed to read upload: " + err.Error(),
		})
		return
	}
	defer file.Close()

	var out bytes.Buffer
	res, err := pipeline.Process(file, &out, format, radius, h.workers)
	if err != nil {
		status := statusFor(err)
		log.Printf("Request %s: %v", requestID, err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": err.Error(),
		})
		return
	}

	log.Printf("Request %s: %dx%d radius %d, %d pixels extrapolated in %s",
		requestID, res.Width, res.Height, radius, res.Stats.ColorExtrapolated, res.ProcessTime)

	c.Header("X-Alpha-Updated", strconv.FormatInt(res.Stats.AlphaUpdated, 10))
	c.Header("X-Color-Extrapolated", strconv.FormatInt(res.Stats.ColorExtrapolated, 10))
	c.Data(http.StatusOK, contentType, out.Bytes())
}

// EnqueueRequest asks the batch workers to process a file they can reach.
type EnqueueRequest struct {
	Input  string `json:"input" binding:"required"`
	Output string `json:"output" binding:"required"`
	Radius *int   `json:"radius"`
}

func (h *Handler) EnqueueHandler(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    503,
			"message": "job queue not configured",
		})
		return
	}

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "Invalid request: " + err.Error(),
		})
		return
	}

	radius := h.radius
	if req.Radius != nil {
		if *req.Radius < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "radius must be a non-negative integer",
			})
			return
		}
		radius = *req.Radius
	}
	if _, err := imageio.FormatFromPath(req.Output); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": err.Error(),
		})
		return
	}

	job := &common.Job{
		ID:         uuid.New().String(),
		InputPath:  req.Input,
		OutputPath: req.Output,
		Radius:     radius,
	}
	if err := h.jobs.Enqueue(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "Failed to queue job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    202,
		"message": "queued",
		"data": gin.H{
			"id":     job.ID,
			"radius": job.Radius,
		},
	})
}

func (h *Handler) StatusHandler(c *gin.Context) {
	if h.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    503,
			"message": "job queue not configured",
		})
		return
	}

	info, err := h.status.GetJobInfo(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": "job not found",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "success",
		"data":    info,
	})
}

func (h *Handler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "ok",
		"data": gin.H{
			"radius": h.radius,
			"queue":  h.jobs != nil,
		},
	})
}

func statusFor(err error) int {
	var mce *channels.MissingChannelError
	if errors.As(err, &mce) {
		return http.StatusUnprocessableEntity
	}
	var ioErr *imageio.Error
	if errors.As(err, &ioErr) && ioErr.Op == "decode" {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
