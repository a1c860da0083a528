package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menta2k/magickplan/pkg/types"
)

const eps = 1e-9

func assertFaceEqual(t *testing.T, want, got types.FaceRegion) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "x")
	assert.InDelta(t, want.Y, got.Y, eps, "y")
	assert.InDelta(t, want.Width, got.Width, eps, "width")
	assert.InDelta(t, want.Height, got.Height, eps, "height")
}

func TestComputeScaleCovers(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		tw, th int
	}{
		{"landscape into square", 800, 600, 100, 100},
		{"portrait into square", 600, 800, 100, 100},
		{"square into wide", 1000, 1000, 300, 100},
		{"upscale", 50, 40, 200, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := types.NewImageState(tt.w, tt.h, "jpeg")
			k := ComputeScale(state, tt.tw, tt.th)
			sw, sh := float64(tt.w)*k, float64(tt.h)*k

			assert.GreaterOrEqual(t, sw+eps, float64(tt.tw))
			assert.GreaterOrEqual(t, sh+eps, float64(tt.th))
			exact := abs(sw-float64(tt.tw)) < eps || abs(sh-float64(tt.th)) < eps
			assert.True(t, exact, "one axis must match the target exactly")
		})
	}

	state := types.NewImageState(800, 600, "jpeg")
	assert.InDelta(t, 1.0/6.0, ComputeScale(state, 100, 100), eps)
}

func TestContainScale(t *testing.T) {
	state := types.NewImageState(800, 600, "jpeg")
	assert.InDelta(t, 0.125, ContainScale(state, 100, 100), eps)
	assert.InDelta(t, 0.5, ContainScale(state, 400, 0), eps)
	assert.InDelta(t, 0.5, ContainScale(state, 0, 300), eps)
}

func TestTransformFaceScaleRoundTrip(t *testing.T) {
	face := types.FaceRegion{X: 13.5, Y: -4, Width: 27, Height: 31}
	got := TransformFace(face, Scale(2), Scale(0.5))
	assertFaceEqual(t, face, got)
}

func TestFoldMatchesSequentialApplication(t *testing.T) {
	face := types.FaceRegion{X: 400, Y: 300, Width: 120, Height: 80}
	ops := []Transform{
		Scale(0.25),
		Translate(-12, 7),
		Scale(3),
		Translate(-40.5, -2),
	}

	seq := face
	for _, op := range ops {
		seq = TransformFace(seq, op)
	}

	assertFaceEqual(t, seq, TransformFace(face, ops...))
	assertFaceEqual(t, seq, Fold(ops...).ApplyFace(face))

	// folding prefixes first gives the same answer
	left := Fold(ops[:2]...).Then(Fold(ops[2:]...))
	assertFaceEqual(t, seq, left.ApplyFace(face))
}

func TestScaleBeforeTranslateOrderMatters(t *testing.T) {
	face := types.FaceRegion{X: 10, Y: 10, Width: 10, Height: 10}
	a := TransformFace(face, Scale(2), Translate(5, 5))
	b := TransformFace(face, Translate(5, 5), Scale(2))
	assert.InDelta(t, 25.0, a.X, eps)
	assert.InDelta(t, 30.0, b.X, eps)
}

func TestTransformFacesKeepsUnknown(t *testing.T) {
	assert.False(t, TransformFaces(types.UnknownFaces(), Scale(2)).Known())

	got := TransformFaces(types.KnownFaces(types.FaceRegion{X: 1, Y: 1, Width: 1, Height: 1, Confidence: 0.9}), Scale(2))
	r := got.Regions()
	assert.Equal(t, 2.0, r[0].X)
	assert.Equal(t, 0.9, r[0].Confidence)
}

func TestRotateFace(t *testing.T) {
	// 100x50 image, face in the top-left corner
	face := types.FaceRegion{X: 0, Y: 0, Width: 10, Height: 20}

	r90 := RotateFace(face, 1, 100, 50)
	assertFaceEqual(t, types.FaceRegion{X: 30, Y: 0, Width: 20, Height: 10}, r90)

	r180 := RotateFace(face, 2, 100, 50)
	assertFaceEqual(t, types.FaceRegion{X: 90, Y: 30, Width: 10, Height: 20}, r180)

	r270 := RotateFace(face, 3, 100, 50)
	assertFaceEqual(t, types.FaceRegion{X: 0, Y: 90, Width: 20, Height: 10}, r270)

	assertFaceEqual(t, face, RotateFace(face, 4, 100, 50))
	assertFaceEqual(t, r270, RotateFace(face, -1, 100, 50))
}

func TestMagickOffset(t *testing.T) {
	tests := []struct {
		in   Vector
		want string
	}{
		{Vector{0, 0}, "+0+0"},
		{Vector{10, 5}, "+10+5"},
		{Vector{-10, 5}, "-10+5"},
		{Vector{10, -5}, "+10-5"},
		{Vector{-0.4, 0.6}, "+0+1"},
		{Vector{-2.5, 2.5}, "-3+3"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MagickOffset(tt.in))
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 10))
	assert.Equal(t, 10.0, Clamp(15, 0, 10))
	assert.Equal(t, 5.0, Clamp(5, 0, 10))
	assert.Equal(t, -10.0, Clamp(-20, 0, -10))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
