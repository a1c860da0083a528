package gravity

import (
	"fmt"
	"strings"

	"github.com/menta2k/magickplan/pkg/geometry"
	"github.com/menta2k/magickplan/pkg/types"
)

// Gravity is a symbolic crop anchor
type Gravity string

const (
	Center    Gravity = "center"
	North     Gravity = "north"
	South     Gravity = "south"
	East      Gravity = "east"
	West      Gravity = "west"
	NorthEast Gravity = "northeast"
	NorthWest Gravity = "northwest"
	SouthEast Gravity = "southeast"
	SouthWest Gravity = "southwest"
	Face      Gravity = "face"
)

// All lists every recognised gravity value
var All = []Gravity{Center, North, South, East, West, NorthEast, NorthWest, SouthEast, SouthWest, Face}

// magick names in ImageMagick's -gravity vocabulary. Face crops are
// expressed as an explicit offset from the centre.
var magick = map[Gravity]string{
	Center:    "Center",
	North:     "North",
	South:     "South",
	East:      "East",
	West:      "West",
	NorthEast: "NorthEast",
	NorthWest: "NorthWest",
	SouthEast: "SouthEast",
	SouthWest: "SouthWest",
	Face:      "Center",
}

// Parse converts a user supplied token into a Gravity
func Parse(s string) (Gravity, error) {
	g := Gravity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := magick[g]; !ok {
		return "", fmt.Errorf("unknown gravity %q", s)
	}
	return g, nil
}

// Valid reports whether g is a recognised value
func (g Gravity) Valid() bool {
	_, ok := magick[g]
	return ok
}

// Magick returns the ImageMagick name of the anchor
func (g Gravity) Magick() string {
	return magick[g]
}

// Placement locates a crop or extent window relative to an image
type Placement struct {
	// Translate is how far the window moved from dead centre.
	Translate geometry.Vector `json:"translate"`
	// Clip holds the insets of the final window inside the image.
	Clip geometry.Insets `json:"clip"`
}

// CentredInset returns the origin the window would have with no translate
func (p Placement) CentredInset() geometry.Vector {
	return p.Clip.Origin().Sub(p.Translate)
}

// Resolver turns gravity values into window placements
type Resolver struct {
	Salience Salience
}

// NewResolver creates a resolver with the default salience policy
func NewResolver() *Resolver {
	return &Resolver{Salience: LargestArea}
}

// Place positions a window of size window inside an image of size image.
// faces must already be expressed in the image's coordinate space and are
// only consulted for Face. Windows larger than the image yield negative insets.
func (r *Resolver) Place(g Gravity, image, window geometry.Size, faces []types.FaceRegion) Placement {
	spareX := image.W - window.W
	spareY := image.H - window.H
	centred := geometry.Vector{X: spareX / 2, Y: spareY / 2}

	origin := centred
	switch g {
	case North:
		origin.Y = 0
	case South:
		origin.Y = spareY
	case East:
		origin.X = spareX
	case West:
		origin.X = 0
	case NorthEast:
		origin = geometry.Vector{X: spareX, Y: 0}
	case NorthWest:
		origin = geometry.Vector{X: 0, Y: 0}
	case SouthEast:
		origin = geometry.Vector{X: spareX, Y: spareY}
	case SouthWest:
		origin = geometry.Vector{X: 0, Y: spareY}
	case Face:
		if face, ok := r.pick(faces); ok {
			cx, cy := face.Center()
			origin = geometry.Vector{
				X: geometry.Clamp(cx-window.W/2, 0, spareX),
				Y: geometry.Clamp(cy-window.H/2, 0, spareY),
			}
		}
	}

	return Placement{
		Translate: origin.Sub(centred),
		Clip: geometry.Insets{
			Top:    origin.Y,
			Left:   origin.X,
			Right:  spareX - origin.X,
			Bottom: spareY - origin.Y,
		},
	}
}

func (r *Resolver) pick(faces []types.FaceRegion) (types.FaceRegion, bool) {
	s := r.Salience
	if s == nil {
		s = LargestArea
	}
	return MostSalient(faces, s)
}
