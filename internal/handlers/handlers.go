package handlers

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/example/anemiascan/internal/auth"
	"github.com/example/anemiascan/internal/imaging"
	"github.com/example/anemiascan/internal/pipeline"
	"github.com/example/anemiascan/internal/repository"
	"github.com/example/anemiascan/internal/scoring"
	"github.com/example/anemiascan/internal/screening"
)

// MaxUploadSize bounds multipart uploads at the transport layer. The
// pipeline enforces the same ceiling as part of validation.
const MaxUploadSize = imaging.DefaultMaxBytes

// Screener runs one submission through the screening pipeline.
type Screener interface {
	Screen(ctx context.Context, sessionID, userID string, sub imaging.Submission, pres pipeline.Presentation) (*scoring.Result, string, error)
	ModelReady() bool
}

// Results reads persisted screening outcomes.
type Results interface {
	GetResult(ctx context.Context, userID, submissionID string) (*repository.ScreeningRecord, error)
	GetDuplicateReport(ctx context.Context, userID, submissionID string) (*screening.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*screening.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, screener Screener, results Results, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		if !screener.ModelReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"model_ready": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"model_ready": true})
	})

	authed := router.Group("/", authMiddleware)

	authed.POST("/screen", func(c *gin.Context) {
		userID, ok := auth.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		file, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		sub := imaging.Submission{
			Raw:      data,
			MimeType: file.Header.Get("Content-Type"),
			Size:     file.Size,
		}

		presenter := &httpPresenter{}
		result, submissionID, err := screener.Screen(c.Request.Context(), userID, userID, sub, presenter)
		if err != nil {
			kind := pipeline.Classify(err)
			// A failed save still carries a valid result; everything else,
			// including a superseded run, is reported as the error it is.
			if kind != pipeline.KindStore || result == nil {
				c.JSON(statusForKind(kind), gin.H{
					"error":   string(kind),
					"message": pipeline.MessageFor(kind),
				})
				return
			}
		}

		response := gin.H{
			"submission_id":        submissionID,
			"risk_class":           result.Class.String(),
			"confidence":           result.Confidence,
			"estimated_hemoglobin": result.EstimatedHemoglobin,
			"message":              result.Message,
			"preview":              presenter.Preview(),
		}
		if err != nil {
			// The result survives a failed save; surface the warning alongside it.
			response["save_error"] = pipeline.MessageFor(pipeline.KindStore)
		}
		c.JSON(http.StatusOK, response)
	})

	authed.GET("/result/:id", func(c *gin.Context) {
		userID, _ := auth.UserID(c)
		submissionID := c.Param("id")
		if submissionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		record, err := results.GetResult(c.Request.Context(), userID, submissionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}

		c.JSON(http.StatusOK, recordJSON(record))
	})

	authed.GET("/result/:id/duplicates", func(c *gin.Context) {
		userID, _ := auth.UserID(c)
		submissionID := c.Param("id")

		report, err := results.GetDuplicateReport(c.Request.Context(), userID, submissionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}

		duplicates := make([]gin.H, 0, len(report.Duplicates))
		for _, dup := range report.Duplicates {
			duplicates = append(duplicates, recordJSON(dup))
		}
		c.JSON(http.StatusOK, gin.H{
			"request":    recordJSON(report.Request),
			"duplicates": duplicates,
		})
	})

	authed.GET("/metrics", func(c *gin.Context) {
		summary, err := results.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func recordJSON(record *repository.ScreeningRecord) gin.H {
	return gin.H{
		"submission_id":        record.SubmissionID,
		"user_id":              record.UserID,
		"risk_class":           record.RiskClass,
		"confidence":           record.Confidence,
		"estimated_hemoglobin": record.EstimatedHemoglobin,
		"message":              record.Message,
		"image_sha1":           record.ImageSHA1,
		"created_at":           record.CreatedAt,
	}
}

func statusForKind(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.KindInvalidType:
		return http.StatusUnsupportedMediaType
	case pipeline.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case pipeline.KindDecode:
		return http.StatusBadRequest
	case pipeline.KindLoad, pipeline.KindModelNotReady:
		return http.StatusServiceUnavailable
	case pipeline.KindSuperseded:
		return http.StatusConflict
	case pipeline.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// httpPresenter adapts the pipeline's presentation port to a single HTTP
// response. It collects artifacts for the handler to serialize.
type httpPresenter struct {
	mu      sync.Mutex
	preview string
}

func (p *httpPresenter) ShowPreview(dataURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preview = dataURL
}

func (p *httpPresenter) ShowResult(result scoring.Result) {}

func (p *httpPresenter) ShowError(kind pipeline.ErrorKind, message string) {}

func (p *httpPresenter) SetModelReady(ready bool) {}

// Preview returns the collected preview artifact, if any.
func (p *httpPresenter) Preview() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preview
}
