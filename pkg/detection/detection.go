package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/menta2k/magickplan/pkg/types"
)

// Source is the original image handed to a detector
type Source struct {
	Data   []byte
	Width  int
	Height int
}

// FaceDetector locates faces in the original, undownscaled image.
// An empty result means no faces were found; failures are reported as errors.
type FaceDetector interface {
	DetectFaces(ctx context.Context, src Source) ([]types.FaceRegion, error)
}

// ErrNoDetector is wrapped when a plan needs faces and no detector is configured
var ErrNoDetector = errors.New("no face detector configured")

// UnavailableError reports that face detection failed or timed out
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("face detection unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err unless it already is an UnavailableError
func Unavailable(err error) error {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Err: err}
}

// Static returns the same faces for every source
type Static struct {
	Faces []types.FaceRegion
}

// DetectFaces returns a copy of the configured faces
func (s Static) DetectFaces(ctx context.Context, src Source) ([]types.FaceRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]types.FaceRegion, len(s.Faces))
	copy(out, s.Faces)
	return out, nil
}

// Func adapts a function to FaceDetector
type Func func(ctx context.Context, src Source) ([]types.FaceRegion, error)

// DetectFaces calls f
func (f Func) DetectFaces(ctx context.Context, src Source) ([]types.FaceRegion, error) {
	return f(ctx, src)
}
