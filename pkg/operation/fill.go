package operation

import (
	"fmt"

	"github.com/menta2k/magickplan/pkg/geometry"
	"github.com/menta2k/magickplan/pkg/gravity"
	"github.com/menta2k/magickplan/pkg/types"
)

// FillConfig configures a cover-resize followed by a gravity crop
type FillConfig struct {
	Width    int    `mapstructure:"width"`
	Height   int    `mapstructure:"height"`
	Gravity  string `mapstructure:"gravity"`
	Salience string `mapstructure:"salience"`
}

// DefaultFillConfig returns the fill defaults
func DefaultFillConfig() FillConfig {
	return FillConfig{
		Gravity:  string(gravity.Center),
		Salience: "area",
	}
}

// Fill resizes the image to cover the target box and crops the excess
type Fill struct {
	Width    int
	Height   int
	Gravity  gravity.Gravity
	resolver *gravity.Resolver
}

// NewFill builds a fill from raw options
func NewFill(options map[string]any) (Operation, error) {
	cfg := DefaultFillConfig()
	if err := decode("fill", options, &cfg); err != nil {
		return nil, err
	}
	return NewFillWithConfig(cfg)
}

// NewFillWithConfig validates cfg and builds a fill
func NewFillWithConfig(cfg FillConfig) (*Fill, error) {
	if err := positive("fill", "width", cfg.Width); err != nil {
		return nil, err
	}
	if err := positive("fill", "height", cfg.Height); err != nil {
		return nil, err
	}
	g, err := gravity.Parse(cfg.Gravity)
	if err != nil {
		return nil, invalid("fill", "gravity", err.Error())
	}
	salience, err := gravity.ParseSalience(cfg.Salience)
	if err != nil {
		return nil, invalid("fill", "salience", err.Error())
	}

	return &Fill{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Gravity:  g,
		resolver: &gravity.Resolver{Salience: salience},
	}, nil
}

// Requirements returns faces only for face gravity
func (f *Fill) Requirements() []types.Requirement {
	if f.Gravity == gravity.Face {
		return []types.Requirement{types.RequireFaces}
	}
	return nil
}

// Execute plans the fill against state
func (f *Fill) Execute(state types.ImageState) (types.CommandFragment, types.ImageState, error) {
	if err := positive("fill", "width", f.Width); err != nil {
		return nil, state, err
	}
	if err := positive("fill", "height", f.Height); err != nil {
		return nil, state, err
	}
	if !f.Gravity.Valid() {
		return nil, state, invalid("fill", "gravity", fmt.Sprintf("unknown value %q", f.Gravity))
	}
	if err := checkState("fill", state); err != nil {
		return nil, state, err
	}

	scale := geometry.ComputeScale(state, f.Width, f.Height)
	image := geometry.SizeOf(state).Scaled(scale)
	window := geometry.Size{W: float64(f.Width), H: float64(f.Height)}

	var scaledFaces []types.FaceRegion
	if f.Gravity == gravity.Face {
		if !state.Faces.Known() {
			return nil, state, &MissingPrerequisiteError{Op: "fill", Requirement: types.RequireFaces}
		}
		scaledFaces = geometry.TransformFaces(state.Faces, geometry.Scale(scale)).Regions()
	}

	resolver := f.resolver
	if resolver == nil {
		resolver = gravity.NewResolver()
	}
	p := resolver.Place(f.Gravity, image, window, scaledFaces)
	inset := p.CentredInset()

	faces := geometry.TransformFaces(state.Faces,
		geometry.Scale(scale),
		geometry.Translate(-p.Translate.X, -p.Translate.Y),
		geometry.Translate(-inset.X, -inset.Y),
	)

	extent := fmt.Sprintf("-extent %dx%d", f.Width, f.Height)
	if f.Gravity == gravity.Face {
		extent += geometry.MagickOffset(p.Translate)
	}

	cmd := types.CommandFragment{
		"-",
		fmt.Sprintf("-resize %dx%d^", f.Width, f.Height),
		"-gravity " + f.Gravity.Magick(),
		extent,
		outputMarker(state),
	}
	return cmd, state.WithSize(f.Width, f.Height).WithFaces(faces), nil
}
