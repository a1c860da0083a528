package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/magickplan/pkg/detection"
	"github.com/menta2k/magickplan/pkg/operation"
	"github.com/menta2k/magickplan/pkg/types"
)

// DefaultTool is the ImageMagick entry point used to render commands
const DefaultTool = "magick"

// Step is a named operation in a pipeline
type Step struct {
	Name      string
	Operation operation.Operation
}

// Build turns serialized specs into steps, failing on the first invalid one
func Build(specs []operation.Spec) ([]Step, error) {
	steps := make([]Step, 0, len(specs))
	for i, spec := range specs {
		op, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, Step{Name: spec.Type, Operation: op})
	}
	return steps, nil
}

// StepResult records what a single step produced
type StepResult struct {
	Name     string                `json:"name"`
	Fragment types.CommandFragment `json:"fragment"`
	State    types.ImageState      `json:"state"`
}

// Plan is the outcome of running a pipeline
type Plan struct {
	Initial types.ImageState `json:"initial"`
	Steps   []StepResult     `json:"steps"`
	Final   types.ImageState `json:"final"`
	// Detected is true when the face detector was called during the run.
	Detected bool `json:"detected"`
}

// Fragments returns the command fragment of every step in order
func (p *Plan) Fragments() []types.CommandFragment {
	out := make([]types.CommandFragment, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Fragment
	}
	return out
}

// Commands renders one shell command per step, each reading stdin and writing
// stdout. tool is used verbatim as the command prefix; every fragment token
// is shell quoted.
func (p *Plan) Commands(tool string) []string {
	if tool == "" {
		tool = DefaultTool
	}
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = tool + " " + s.Fragment.Shell()
	}
	return out
}

// Pipeline joins the step commands into a single shell pipeline
func (p *Plan) Pipeline(tool string) string {
	return strings.Join(p.Commands(tool), " | ")
}

// Option configures an Executor
type Option func(*Executor)

// WithDetector sets the collaborator used to resolve the faces requirement
func WithDetector(d detection.FaceDetector) Option {
	return func(e *Executor) { e.detector = d }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Executor) { e.log = l }
}

// WithDetectTimeout bounds each call into the face detector
func WithDetectTimeout(d time.Duration) Option {
	return func(e *Executor) { e.detectTimeout = d }
}

// Executor runs operation pipelines. It holds no per-run state and may be
// shared between goroutines.
type Executor struct {
	detector      detection.FaceDetector
	log           logrus.FieldLogger
	detectTimeout time.Duration
}

// NewExecutor creates an executor
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		log:           logrus.StandardLogger(),
		detectTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run threads initial through steps. Every requirement declared by any step
// is resolved once against the source before the first step executes, so
// detected faces share the initial state's coordinate space.
func (e *Executor) Run(ctx context.Context, src detection.Source, initial types.ImageState, steps []Step) (*Plan, error) {
	log := e.log.WithFields(logrus.Fields{
		"width":    initial.Width,
		"height":   initial.Height,
		"encoding": initial.Encoding,
		"steps":    len(steps),
	})

	state := initial
	detected := false
	for _, req := range Requirements(steps) {
		if satisfied(state, req) {
			continue
		}
		next, err := e.resolve(ctx, src, state, req, log)
		if err != nil {
			return nil, err
		}
		state = next
		detected = true
	}

	plan := &Plan{Initial: state, Steps: make([]StepResult, 0, len(steps)), Detected: detected}
	for i, step := range steps {
		for _, req := range step.Operation.Requirements() {
			if !satisfied(state, req) {
				return nil, &operation.MissingPrerequisiteError{Op: step.Name, Requirement: req}
			}
		}

		frag, next, err := step.Operation.Execute(state)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Name, err)
		}
		log.WithFields(logrus.Fields{
			"step":     step.Name,
			"index":    i,
			"width":    next.Width,
			"height":   next.Height,
			"fragment": frag.String(),
		}).Debug("planned step")

		plan.Steps = append(plan.Steps, StepResult{Name: step.Name, Fragment: frag, State: next})
		state = next
	}

	plan.Final = state
	return plan, nil
}

// Requirements returns the union of the steps' requirements in first-seen order
func Requirements(steps []Step) []types.Requirement {
	seen := map[types.Requirement]bool{}
	var out []types.Requirement
	for _, step := range steps {
		for _, req := range step.Operation.Requirements() {
			if !seen[req] {
				seen[req] = true
				out = append(out, req)
			}
		}
	}
	return out
}

func satisfied(state types.ImageState, req types.Requirement) bool {
	switch req {
	case types.RequireFaces:
		return state.Faces.Known()
	}
	return false
}

func (e *Executor) resolve(ctx context.Context, src detection.Source, state types.ImageState, req types.Requirement, log logrus.FieldLogger) (types.ImageState, error) {
	switch req {
	case types.RequireFaces:
		faces, err := e.detectFaces(ctx, src)
		if err != nil {
			log.WithError(err).Error("face detection failed")
			return state, err
		}
		log.WithField("faces", len(faces)).Info("faces detected")
		return state.WithFaces(types.KnownFaces(faces...)), nil
	}
	return state, fmt.Errorf("no resolver for requirement %q", req)
}

func (e *Executor) detectFaces(ctx context.Context, src detection.Source) ([]types.FaceRegion, error) {
	if e.detector == nil {
		return nil, detection.Unavailable(detection.ErrNoDetector)
	}
	if e.detectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.detectTimeout)
		defer cancel()
	}

	start := time.Now()
	faces, err := e.detector.DetectFaces(ctx, src)
	if err != nil {
		return nil, detection.Unavailable(err)
	}
	e.log.WithField("elapsed", time.Since(start)).Debug("face detector returned")
	return faces, nil
}
