package gravity

import (
	"fmt"
	"strings"

	"github.com/menta2k/magickplan/pkg/types"
)

// Salience scores a face; the highest score is treated as the most prominent
type Salience func(types.FaceRegion) float64

// LargestArea prefers the biggest bounding box
func LargestArea(f types.FaceRegion) float64 {
	return f.Area()
}

// HighestConfidence prefers the face the detector was most sure about
func HighestConfidence(f types.FaceRegion) float64 {
	return f.Confidence
}

var policies = map[string]Salience{
	"area":       LargestArea,
	"confidence": HighestConfidence,
}

// ParseSalience looks up a policy by name
func ParseSalience(name string) (Salience, error) {
	s, ok := policies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown salience policy %q", name)
	}
	return s, nil
}

// MostSalient returns the highest scoring face. Ties go to the earliest face.
func MostSalient(faces []types.FaceRegion, score Salience) (types.FaceRegion, bool) {
	if len(faces) == 0 {
		return types.FaceRegion{}, false
	}
	best, bestScore := faces[0], score(faces[0])
	for _, f := range faces[1:] {
		if s := score(f); s > bestScore {
			best, bestScore = f, s
		}
	}
	return best, true
}
