package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/magickplan"
	"github.com/menta2k/magickplan/internal/utils"
	"github.com/menta2k/magickplan/pkg/detection"
	"github.com/menta2k/magickplan/pkg/operation"
	"github.com/menta2k/magickplan/pkg/pipeline"
	"github.com/menta2k/magickplan/pkg/processing"
	"github.com/menta2k/magickplan/pkg/types"
)

// Planner produces a plan for an in-memory source
type Planner interface {
	Plan(ctx context.Context, req magickplan.Request) (*magickplan.Result, error)
}

// FormOverhead is the room left above the source limit for multipart headers
// and the operations and faces fields
const FormOverhead = 1 << 20

// PlanHandler serves POST /v1/plan
type PlanHandler struct {
	planner      Planner
	maxBytes     int64
	formOverhead int64
	log          logrus.FieldLogger
}

// NewPlanHandler creates a handler; maxBytes of zero disables the upload limit
func NewPlanHandler(planner Planner, maxBytes int64, log logrus.FieldLogger) *PlanHandler {
	return &PlanHandler{planner: planner, maxBytes: maxBytes, formOverhead: FormOverhead, log: log}
}

// PlanResponse is the JSON body of a successful plan
type PlanResponse struct {
	ID       string                `json:"id"`
	Commands []string              `json:"commands"`
	Pipeline string                `json:"pipeline"`
	State    types.ImageState      `json:"state"`
	Steps    []pipeline.StepResult `json:"steps"`
	Detected bool                  `json:"detected"`
}

type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// Plan reads the multipart form fields image, operations and faces
func (h *PlanHandler) Plan(c *gin.Context) {
	req, err := h.readRequest(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.planner.Plan(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, PlanResponse{
		ID:       result.ID,
		Commands: result.Commands,
		Pipeline: result.Pipeline,
		State:    result.State,
		Steps:    result.Plan.Steps,
		Detected: result.Plan.Detected,
	})
}

func (h *PlanHandler) readRequest(c *gin.Context) (magickplan.Request, error) {
	var req magickplan.Request

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+h.formOverhead)
	}

	fh, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, fmt.Errorf("%w: request body exceeds %s: %w", processing.ErrSourceTooLarge,
				utils.FormatFileSize(maxErr.Limit), err)
		}
		return req, &requestError{http.StatusBadRequest, "no image file provided"}
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return req, h.tooLarge(fh.Size)
	}

	f, err := fh.Open()
	if err != nil {
		return req, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxBytes > 0 {
		r = io.LimitReader(f, h.maxBytes+1)
	}
	counter := &utils.CountingReader{R: r}
	if req.Source, err = io.ReadAll(counter); err != nil {
		return req, fmt.Errorf("failed to read upload: %w", err)
	}
	if h.maxBytes > 0 && counter.N > h.maxBytes {
		rest, _ := utils.CountBytes(f)
		return req, h.tooLarge(counter.N + rest)
	}
	h.log.WithField("size", utils.FormatFileSize(counter.N)).Debug("source received")

	raw := c.PostForm("operations")
	if raw == "" {
		return req, &requestError{http.StatusBadRequest, "operations field is required"}
	}
	if err := json.Unmarshal([]byte(raw), &req.Operations); err != nil {
		return req, &requestError{http.StatusBadRequest, "invalid operations: " + err.Error()}
	}

	if raw := c.PostForm("faces"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Faces); err != nil {
			return req, &requestError{http.StatusBadRequest, "invalid faces: " + err.Error()}
		}
	}
	return req, nil
}

func (h *PlanHandler) tooLarge(size int64) error {
	return fmt.Errorf("%w: %s exceeds %s", processing.ErrSourceTooLarge,
		utils.FormatFileSize(size), utils.FormatFileSize(h.maxBytes))
}

func (h *PlanHandler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("plan failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps planner errors onto HTTP status codes
func StatusFor(err error) int {
	var reqErr *requestError
	var cfgErr *operation.ConfigurationError
	var unavailable *detection.UnavailableError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, processing.ErrSourceTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &cfgErr), errors.Is(err, processing.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
