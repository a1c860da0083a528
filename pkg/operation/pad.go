package operation

import (
	"fmt"
	"strings"

	"github.com/menta2k/magickplan/pkg/geometry"
	"github.com/menta2k/magickplan/pkg/gravity"
	"github.com/menta2k/magickplan/pkg/types"
)

// PadConfig configures a canvas extension
type PadConfig struct {
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	Gravity    string `mapstructure:"gravity"`
	Background string `mapstructure:"background"`
}

// DefaultPadConfig returns the pad defaults
func DefaultPadConfig() PadConfig {
	return PadConfig{
		Gravity:    string(gravity.Center),
		Background: "white",
	}
}

// Pad places the image on a larger canvas filled with Background
type Pad struct {
	Width      int
	Height     int
	Gravity    gravity.Gravity
	Background string
}

// NewPad builds a pad from raw options
func NewPad(options map[string]any) (Operation, error) {
	cfg := DefaultPadConfig()
	if err := decode("pad", options, &cfg); err != nil {
		return nil, err
	}
	return NewPadWithConfig(cfg)
}

// NewPadWithConfig validates cfg and builds a pad
func NewPadWithConfig(cfg PadConfig) (*Pad, error) {
	if err := positive("pad", "width", cfg.Width); err != nil {
		return nil, err
	}
	if err := positive("pad", "height", cfg.Height); err != nil {
		return nil, err
	}
	g, err := gravity.Parse(cfg.Gravity)
	if err != nil {
		return nil, invalid("pad", "gravity", err.Error())
	}
	if g == gravity.Face {
		return nil, invalid("pad", "gravity", "face is not supported for padding")
	}
	bg := strings.TrimSpace(cfg.Background)
	if bg == "" || strings.ContainsAny(bg, " \t\n") {
		return nil, invalid("pad", "background", fmt.Sprintf("invalid colour %q", cfg.Background))
	}
	return &Pad{Width: cfg.Width, Height: cfg.Height, Gravity: g, Background: bg}, nil
}

// Requirements returns nothing
func (p *Pad) Requirements() []types.Requirement {
	return nil
}

// Execute plans the pad against state
func (p *Pad) Execute(state types.ImageState) (types.CommandFragment, types.ImageState, error) {
	if !p.Gravity.Valid() || p.Gravity == gravity.Face {
		return nil, state, invalid("pad", "gravity", fmt.Sprintf("unsupported value %q", p.Gravity))
	}
	if err := checkState("pad", state); err != nil {
		return nil, state, err
	}
	if p.Width < state.Width || p.Height < state.Height {
		return nil, state, invalid("pad", "width/height",
			fmt.Sprintf("canvas %dx%d is smaller than the %dx%d image", p.Width, p.Height, state.Width, state.Height))
	}

	placement := gravity.NewResolver().Place(p.Gravity,
		geometry.SizeOf(state),
		geometry.Size{W: float64(p.Width), H: float64(p.Height)},
		nil,
	)
	inset := placement.CentredInset()
	faces := geometry.TransformFaces(state.Faces,
		geometry.Translate(-placement.Translate.X, -placement.Translate.Y),
		geometry.Translate(-inset.X, -inset.Y),
	)

	cmd := types.CommandFragment{
		"-",
		"-background " + p.Background,
		"-gravity " + p.Gravity.Magick(),
		fmt.Sprintf("-extent %dx%d", p.Width, p.Height),
		outputMarker(state),
	}
	return cmd, state.WithSize(p.Width, p.Height).WithFaces(faces), nil
}
