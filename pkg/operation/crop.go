package operation

import (
	"fmt"

	"github.com/menta2k/magickplan/pkg/geometry"
	"github.com/menta2k/magickplan/pkg/types"
)

// CropConfig selects an explicit pixel region
type CropConfig struct {
	X      int `mapstructure:"x"`
	Y      int `mapstructure:"y"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Crop cuts a fixed region out of the image. Regions extending past the
// image edge are trimmed to it.
type Crop struct {
	X      int
	Y      int
	Width  int
	Height int
}

// NewCrop builds a crop from raw options
func NewCrop(options map[string]any) (Operation, error) {
	var cfg CropConfig
	if err := decode("crop", options, &cfg); err != nil {
		return nil, err
	}
	return NewCropWithConfig(cfg)
}

// NewCropWithConfig validates cfg and builds a crop
func NewCropWithConfig(cfg CropConfig) (*Crop, error) {
	if cfg.X < 0 || cfg.Y < 0 {
		return nil, invalid("crop", "x/y", "must not be negative")
	}
	if err := positive("crop", "width", cfg.Width); err != nil {
		return nil, err
	}
	if err := positive("crop", "height", cfg.Height); err != nil {
		return nil, err
	}
	return &Crop{X: cfg.X, Y: cfg.Y, Width: cfg.Width, Height: cfg.Height}, nil
}

// Requirements returns nothing
func (c *Crop) Requirements() []types.Requirement {
	return nil
}

// Execute plans the crop against state
func (c *Crop) Execute(state types.ImageState) (types.CommandFragment, types.ImageState, error) {
	if c.X < 0 || c.Y < 0 {
		return nil, state, invalid("crop", "x/y", "must not be negative")
	}
	if err := positive("crop", "width", c.Width); err != nil {
		return nil, state, err
	}
	if err := positive("crop", "height", c.Height); err != nil {
		return nil, state, err
	}
	if err := checkState("crop", state); err != nil {
		return nil, state, err
	}
	if c.X >= state.Width || c.Y >= state.Height {
		return nil, state, invalid("crop", "x/y",
			fmt.Sprintf("origin %d,%d lies outside the %dx%d image", c.X, c.Y, state.Width, state.Height))
	}

	width := min(c.Width, state.Width-c.X)
	height := min(c.Height, state.Height-c.Y)

	cmd := types.CommandFragment{
		"-",
		fmt.Sprintf("-crop %dx%d+%d+%d", width, height, c.X, c.Y),
		"+repage",
		outputMarker(state),
	}
	faces := geometry.TransformFaces(state.Faces, geometry.Translate(-float64(c.X), -float64(c.Y)))
	return cmd, state.WithSize(width, height).WithFaces(faces), nil
}
