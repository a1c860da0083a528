// Package magickplan turns a source image and a list of declarative
// operations into ImageMagick command lines, keeping detected face regions
// consistent with every resize, crop and rotation along the way.
//
// Basic usage:
//
//	planner := magickplan.New(magickplan.WithDetector(detector))
//	result, err := planner.Plan(ctx, magickplan.Request{
//		Source: data,
//		Operations: []operation.Spec{
//			{Type: "fill", Options: map[string]any{"width": 400, "height": 400, "gravity": "face"}},
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(result.Pipeline)
//
// Faces are detected at most once per plan, and only when an operation
// asks for them and the request did not already carry them.
package magickplan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/magickplan/pkg/detection"
	"github.com/menta2k/magickplan/pkg/operation"
	"github.com/menta2k/magickplan/pkg/pipeline"
	"github.com/menta2k/magickplan/pkg/processing"
	"github.com/menta2k/magickplan/pkg/types"
)

// Version of the planner library
const Version = "1.0.0"

// Request describes one image to plan
type Request struct {
	Source     []byte           `json:"-"`
	Faces      types.Faces      `json:"faces"`
	Operations []operation.Spec `json:"operations"`
}

// Result is a finished plan
type Result struct {
	ID       string           `json:"id"`
	Commands []string         `json:"commands"`
	Pipeline string           `json:"pipeline"`
	State    types.ImageState `json:"state"`
	Plan     *pipeline.Plan   `json:"plan"`
}

type settings struct {
	detector      detection.FaceDetector
	logger        logrus.FieldLogger
	processor     *processing.Processor
	tool          string
	detectTimeout time.Duration
}

// Option configures a Planner
type Option func(*settings)

// WithDetector sets the face detector used for face gravity
func WithDetector(d detection.FaceDetector) Option {
	return func(s *settings) { s.detector = d }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *settings) { s.logger = l }
}

// WithProcessor replaces the default source processor
func WithProcessor(p *processing.Processor) Option {
	return func(s *settings) { s.processor = p }
}

// WithTool sets the executable name used when rendering commands
func WithTool(tool string) Option {
	return func(s *settings) { s.tool = tool }
}

// WithDetectTimeout bounds each face detection call
func WithDetectTimeout(d time.Duration) Option {
	return func(s *settings) { s.detectTimeout = d }
}

// Planner is the high-level entry point
type Planner struct {
	processor *processing.Processor
	executor  *pipeline.Executor
	tool      string
	log       logrus.FieldLogger
}

// New creates a Planner
func New(opts ...Option) *Planner {
	s := settings{
		logger:        logrus.StandardLogger(),
		tool:          pipeline.DefaultTool,
		detectTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.processor == nil {
		s.processor = processing.NewProcessor()
	}

	return &Planner{
		processor: s.processor,
		executor: pipeline.NewExecutor(
			pipeline.WithDetector(s.detector),
			pipeline.WithLogger(s.logger),
			pipeline.WithDetectTimeout(s.detectTimeout),
		),
		tool: s.tool,
		log:  s.logger,
	}
}

// Plan inspects the source and runs the requested operations against it
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	steps, err := pipeline.Build(req.Operations)
	if err != nil {
		return nil, err
	}

	state, err := p.processor.Inspect(req.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect source: %w", err)
	}
	state = state.WithFaces(req.Faces)

	src := detection.Source{Data: req.Source, Width: state.Width, Height: state.Height}
	plan, err := p.executor.Run(ctx, src, state, steps)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ID:       uuid.New().String(),
		Commands: plan.Commands(p.tool),
		Pipeline: plan.Pipeline(p.tool),
		State:    plan.Final,
		Plan:     plan,
	}
	p.log.WithFields(logrus.Fields{
		"id":       result.ID,
		"steps":    len(plan.Steps),
		"detected": plan.Detected,
	}).Info("plan ready")
	return result, nil
}

// PlanSource loads source from a path or URL and plans it
func (p *Planner) PlanSource(ctx context.Context, source string, faces types.Faces, ops []operation.Spec) (*Result, error) {
	data, err := p.processor.LoadSource(ctx, source)
	if err != nil {
		return nil, err
	}
	return p.Plan(ctx, Request{Source: data, Faces: faces, Operations: ops})
}
