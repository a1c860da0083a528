package operation

import (
	"fmt"

	"github.com/menta2k/magickplan/pkg/geometry"
	"github.com/menta2k/magickplan/pkg/types"
)

// RotateConfig holds a clockwise rotation in degrees
type RotateConfig struct {
	Degrees int `mapstructure:"degrees"`
}

// Rotate turns the image clockwise by a multiple of 90 degrees
type Rotate struct {
	Degrees int
}

// NewRotate builds a rotate from raw options
func NewRotate(options map[string]any) (Operation, error) {
	var cfg RotateConfig
	if err := decode("rotate", options, &cfg); err != nil {
		return nil, err
	}
	return NewRotateWithConfig(cfg)
}

// NewRotateWithConfig validates cfg and builds a rotate
func NewRotateWithConfig(cfg RotateConfig) (*Rotate, error) {
	if cfg.Degrees%90 != 0 {
		return nil, invalid("rotate", "degrees", fmt.Sprintf("must be a multiple of 90, got %d", cfg.Degrees))
	}
	return &Rotate{Degrees: ((cfg.Degrees % 360) + 360) % 360}, nil
}

// Requirements returns nothing
func (r *Rotate) Requirements() []types.Requirement {
	return nil
}

// Execute plans the rotation against state
func (r *Rotate) Execute(state types.ImageState) (types.CommandFragment, types.ImageState, error) {
	if r.Degrees%90 != 0 {
		return nil, state, invalid("rotate", "degrees", fmt.Sprintf("must be a multiple of 90, got %d", r.Degrees))
	}
	if err := checkState("rotate", state); err != nil {
		return nil, state, err
	}

	turns := (((r.Degrees / 90) % 4) + 4) % 4
	w, h := float64(state.Width), float64(state.Height)
	faces := state.Faces.Map(func(f types.FaceRegion) types.FaceRegion {
		return geometry.RotateFace(f, turns, w, h)
	})

	next := state.WithFaces(faces)
	if turns%2 == 1 {
		next = next.WithSize(state.Height, state.Width)
	}

	cmd := types.CommandFragment{
		"-",
		fmt.Sprintf("-rotate %d", turns*90),
		outputMarker(state),
	}
	return cmd, next, nil
}
