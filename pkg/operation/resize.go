package operation

import (
	"fmt"
	"math"

	"github.com/menta2k/magickplan/pkg/geometry"
	"github.com/menta2k/magickplan/pkg/types"
)

// ResizeConfig configures an aspect-preserving fit. A zero axis is unconstrained.
type ResizeConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Resize scales the image to fit inside the target box
type Resize struct {
	Width  int
	Height int
}

// NewResize builds a resize from raw options
func NewResize(options map[string]any) (Operation, error) {
	var cfg ResizeConfig
	if err := decode("resize", options, &cfg); err != nil {
		return nil, err
	}
	return NewResizeWithConfig(cfg)
}

// NewResizeWithConfig validates cfg and builds a resize
func NewResizeWithConfig(cfg ResizeConfig) (*Resize, error) {
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, invalid("resize", "width/height", "must not be negative")
	}
	if cfg.Width == 0 && cfg.Height == 0 {
		return nil, invalid("resize", "width/height", "at least one must be positive")
	}
	return &Resize{Width: cfg.Width, Height: cfg.Height}, nil
}

// Requirements returns nothing; resize is metadata independent
func (r *Resize) Requirements() []types.Requirement {
	return nil
}

// Execute plans the resize against state
func (r *Resize) Execute(state types.ImageState) (types.CommandFragment, types.ImageState, error) {
	if r.Width <= 0 && r.Height <= 0 {
		return nil, state, invalid("resize", "width/height", "at least one must be positive")
	}
	if err := checkState("resize", state); err != nil {
		return nil, state, err
	}

	scale := geometry.ContainScale(state, r.Width, r.Height)
	size := geometry.SizeOf(state).Scaled(scale)
	width := max(1, int(math.Round(size.W)))
	height := max(1, int(math.Round(size.H)))

	cmd := types.CommandFragment{
		"-",
		"-resize " + resizeGeometry(r.Width, r.Height),
		outputMarker(state),
	}
	faces := geometry.TransformFaces(state.Faces, geometry.Scale(scale))
	return cmd, state.WithSize(width, height).WithFaces(faces), nil
}

func resizeGeometry(w, h int) string {
	switch {
	case h <= 0:
		return fmt.Sprintf("%dx", w)
	case w <= 0:
		return fmt.Sprintf("x%d", h)
	}
	return fmt.Sprintf("%dx%d", w, h)
}
