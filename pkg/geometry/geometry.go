package geometry

import (
	"fmt"
	"math"

	"github.com/menta2k/magickplan/pkg/types"
)

// Size is a width/height pair in pixels
type Size struct {
	W float64
	H float64
}

// SizeOf returns the dimensions of a state as a Size
func SizeOf(state types.ImageState) Size {
	return Size{W: float64(state.Width), H: float64(state.Height)}
}

// Scaled multiplies both axes by k
func (s Size) Scaled(k float64) Size {
	return Size{W: s.W * k, H: s.H * k}
}

// Vector is a displacement in pixels
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Neg returns the opposite displacement
func (v Vector) Neg() Vector {
	return Vector{X: -v.X, Y: -v.Y}
}

// Sub returns v - o
func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y}
}

// Insets describes how far a window sits inside an image on each side
type Insets struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Origin returns the window's top-left corner in image coordinates
func (i Insets) Origin() Vector {
	return Vector{X: i.Left, Y: i.Top}
}

// ComputeScale returns the uniform multiplier that makes the image cover the target box.
// After scaling one axis equals its target and the other is at least its target.
func ComputeScale(state types.ImageState, targetWidth, targetHeight int) float64 {
	sx := float64(targetWidth) / float64(state.Width)
	sy := float64(targetHeight) / float64(state.Height)
	return math.Max(sx, sy)
}

// ContainScale returns the uniform multiplier that fits the image inside the target box.
// A zero target axis is unconstrained.
func ContainScale(state types.ImageState, targetWidth, targetHeight int) float64 {
	switch {
	case targetWidth <= 0:
		return float64(targetHeight) / float64(state.Height)
	case targetHeight <= 0:
		return float64(targetWidth) / float64(state.Width)
	}
	sx := float64(targetWidth) / float64(state.Width)
	sy := float64(targetHeight) / float64(state.Height)
	return math.Min(sx, sy)
}

// MagickOffset formats a translate as an ImageMagick geometry offset such as "+10-5".
// Positive components move the crop window right and down.
func MagickOffset(v Vector) string {
	return fmt.Sprintf("%+d%+d", roundInt(v.X), roundInt(v.Y))
}

// Clamp bounds v to [lo, hi]. When lo > hi the bounds are swapped.
func Clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
