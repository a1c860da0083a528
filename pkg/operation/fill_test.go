package operation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/magickplan/pkg/gravity"
	"github.com/menta2k/magickplan/pkg/types"
)

func mustFill(t *testing.T, options map[string]any) *Fill {
	t.Helper()
	op, err := NewFill(options)
	require.NoError(t, err)
	return op.(*Fill)
}

func TestFillRequirementsOverEveryGravity(t *testing.T) {
	for _, g := range gravity.All {
		t.Run(string(g), func(t *testing.T) {
			fill := mustFill(t, map[string]any{"width": 10, "height": 10, "gravity": string(g)})
			if g == gravity.Face {
				assert.Equal(t, []types.Requirement{types.RequireFaces}, fill.Requirements())
			} else {
				assert.Empty(t, fill.Requirements())
			}
		})
	}
}

func TestFillConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		field   string
	}{
		{"zero width", map[string]any{"width": 0, "height": 10}, "width"},
		{"missing height", map[string]any{"width": 10}, "height"},
		{"negative height", map[string]any{"width": 10, "height": -1}, "height"},
		{"unknown gravity", map[string]any{"width": 10, "height": 10, "gravity": "middle"}, "gravity"},
		{"unknown salience", map[string]any{"width": 10, "height": 10, "salience": "loud"}, "salience"},
		{"unknown key", map[string]any{"width": 10, "height": 10, "colour": "red"}, ""},
		{"wrong type", map[string]any{"width": "ten", "height": 10}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFill(tt.options)
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %T", err)
			assert.Equal(t, "fill", cfgErr.Op)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestFillDefaults(t *testing.T) {
	fill := mustFill(t, map[string]any{"width": 10.0, "height": 20.0})
	assert.Equal(t, 10, fill.Width)
	assert.Equal(t, 20, fill.Height)
	assert.Equal(t, gravity.Center, fill.Gravity)
}

func TestFillExecuteRejectsBadDimensions(t *testing.T) {
	fill := &Fill{Width: 0, Height: 10, Gravity: gravity.Center}
	_, _, err := fill.Execute(types.NewImageState(100, 100, "jpeg"))

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestFillCenterOnlyScalesFaces(t *testing.T) {
	fill := mustFill(t, map[string]any{"width": 100, "height": 100})
	face := types.FaceRegion{X: 40, Y: 80, Width: 20, Height: 10}
	state := types.NewImageState(400, 400, "jpeg").WithFaces(types.KnownFaces(face))

	cmd, next, err := fill.Execute(state)
	require.NoError(t, err)

	assert.Equal(t, types.CommandFragment{"-", "-resize 100x100^", "-gravity Center", "-extent 100x100", "jpeg:-"}, cmd)
	assert.Equal(t, 100, next.Width)
	assert.Equal(t, 100, next.Height)

	got := next.Faces.Regions()
	require.Len(t, got, 1)
	assert.InDelta(t, 10.0, got[0].X, 1e-9)
	assert.InDelta(t, 20.0, got[0].Y, 1e-9)
	assert.InDelta(t, 5.0, got[0].Width, 1e-9)
	assert.InDelta(t, 2.5, got[0].Height, 1e-9)
}

// Fixed gravities move faces into the cropped frame, not only scale them.
// For a source with the target's aspect the shift is zero, so faces only
// scale; for other aspects the crop origin is subtracted as well, which keeps
// faces in output coordinates.
func TestFillCenterReoriginsFacesAfterCrop(t *testing.T) {
	fill := mustFill(t, map[string]any{"width": 100, "height": 100})
	// 800x600 scales to 133.3x100, centred window starts at x=16.67
	face := types.FaceRegion{X: 400, Y: 300, Width: 60, Height: 60}
	state := types.NewImageState(800, 600, "png").WithFaces(types.KnownFaces(face))

	_, next, err := fill.Execute(state)
	require.NoError(t, err)

	got := next.Faces.Regions()[0]
	assert.InDelta(t, 400.0/6-100.0/6, got.X, 1e-9)
	assert.InDelta(t, 50.0, got.Y, 1e-9)
}

func TestFillFaceCentresOnFace(t *testing.T) {
	fill := mustFill(t, map[string]any{"width": 200, "height": 200, "gravity": "face"})
	face := types.FaceRegion{X: 900, Y: 450, Width: 100, Height: 100}
	state := types.NewImageState(2000, 1000, "jpeg").WithFaces(types.KnownFaces(face))

	cmd, next, err := fill.Execute(state)
	require.NoError(t, err)

	assert.Equal(t, types.CommandFragment{
		"-",
		"-resize 200x200^",
		"-gravity Center",
		"-extent 200x200-10+0",
		"jpeg:-",
	}, cmd)

	cx, cy := next.Faces.Regions()[0].Center()
	assert.InDelta(t, 100.0, cx, 1)
	assert.InDelta(t, 100.0, cy, 1)
}

func TestFillFaceWithoutRoomKeepsWindowInsideImage(t *testing.T) {
	fill := mustFill(t, map[string]any{"width": 200, "height": 200, "gravity": "face"})
	face := types.FaceRegion{X: 400, Y: 400, Width: 100, Height: 100}
	state := types.NewImageState(1000, 1000, "jpeg").WithFaces(types.KnownFaces(face))

	cmd, next, err := fill.Execute(state)
	require.NoError(t, err)

	// the scaled image is exactly the target size so the window cannot move
	assert.Equal(t, "-extent 200x200+0+0", cmd[3])
	got := next.Faces.Regions()[0]
	assert.InDelta(t, 80.0, got.X, 1e-9)
	assert.InDelta(t, 80.0, got.Y, 1e-9)
	assert.InDelta(t, 20.0, got.Width, 1e-9)
}

func TestFillFaceWithEmptyFacesFallsBackToCenter(t *testing.T) {
	face := mustFill(t, map[string]any{"width": 100, "height": 100, "gravity": "face"})
	center := mustFill(t, map[string]any{"width": 100, "height": 100})
	state := types.NewImageState(800, 600, "jpeg").WithFaces(types.KnownFaces())

	faceCmd, faceNext, err := face.Execute(state)
	require.NoError(t, err)
	_, centerNext, err := center.Execute(state)
	require.NoError(t, err)

	assert.Equal(t, "-extent 100x100+0+0", faceCmd[3])
	assert.Equal(t, centerNext, faceNext)
	assert.True(t, faceNext.Faces.Known())
}

func TestFillFaceWithUnknownFacesFails(t *testing.T) {
	fill := mustFill(t, map[string]any{"width": 100, "height": 100, "gravity": "face"})

	_, _, err := fill.Execute(types.NewImageState(800, 600, "jpeg"))
	var missing *MissingPrerequisiteError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, types.RequireFaces, missing.Requirement)
}

func TestFillFixedAnchorHasNoOffset(t *testing.T) {
	fill := mustFill(t, map[string]any{"width": 50, "height": 50, "gravity": "southeast"})
	cmd, _, err := fill.Execute(types.NewImageState(300, 200, "webp"))
	require.NoError(t, err)
	assert.Equal(t, "-gravity SouthEast", cmd[2])
	assert.Equal(t, "-extent 50x50", cmd[3])
	assert.Equal(t, "webp:-", cmd[4])
}

func TestFillIsPure(t *testing.T) {
	fill := mustFill(t, map[string]any{"width": 120, "height": 80, "gravity": "face"})
	state := types.NewImageState(640, 480, "jpeg").WithFaces(types.KnownFaces(
		types.FaceRegion{X: 10, Y: 20, Width: 30, Height: 30},
		types.FaceRegion{X: 400, Y: 100, Width: 80, Height: 90},
	))

	cmd1, next1, err1 := fill.Execute(state)
	cmd2, next2, err2 := fill.Execute(state)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, cmd1, cmd2)
	assert.Equal(t, next1, next2)
	assert.Equal(t, 640, state.Width)
}

func BenchmarkFillFace(b *testing.B) {
	op, _ := NewFill(map[string]any{"width": 300, "height": 200, "gravity": "face"})
	state := types.NewImageState(4000, 3000, "jpeg").WithFaces(types.KnownFaces(
		types.FaceRegion{X: 1000, Y: 800, Width: 300, Height: 300},
		types.FaceRegion{X: 2500, Y: 900, Width: 200, Height: 220},
	))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = op.Execute(state)
	}
}
