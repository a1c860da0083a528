package types

import (
	"encoding/json"
	"strings"

	"github.com/alessio/shellescape"
)

// Requirement names a piece of image metadata an operation needs before it can run
type Requirement string

// RequireFaces asks for detected face regions on the incoming state
const RequireFaces Requirement = "faces"

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DetectedFace is a single face reported by a vision model
type DetectedFace struct {
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// FaceAnalysis contains the face locator answer from the vision model
type FaceAnalysis struct {
	Faces       []DetectedFace `json:"faces"`
	Description string         `json:"description"`
}

// FaceRegion is an axis-aligned rectangle in the pixel space of the ImageState it belongs to.
// X and Y may be negative after a crop moved the origin past the face.
type FaceRegion struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Center returns the midpoint of the region
func (f FaceRegion) Center() (float64, float64) {
	return f.X + f.Width/2, f.Y + f.Height/2
}

// Area returns the region area
func (f FaceRegion) Area() float64 {
	return f.Width * f.Height
}

// Faces is an optional list of face regions.
// The zero value is unknown: detection has not run. KnownFaces with no
// arguments means detection ran and found nothing.
type Faces struct {
	regions []FaceRegion
	known   bool
}

// UnknownFaces returns the absent value
func UnknownFaces() Faces {
	return Faces{}
}

// KnownFaces returns a present list holding a copy of regions
func KnownFaces(regions ...FaceRegion) Faces {
	out := make([]FaceRegion, len(regions))
	copy(out, regions)
	return Faces{regions: out, known: true}
}

// Known reports whether face detection has populated the list
func (f Faces) Known() bool {
	return f.known
}

// Len returns the number of regions, zero when unknown
func (f Faces) Len() int {
	return len(f.regions)
}

// Regions returns a copy of the regions, nil when unknown
func (f Faces) Regions() []FaceRegion {
	if !f.known {
		return nil
	}
	out := make([]FaceRegion, len(f.regions))
	copy(out, f.regions)
	return out
}

// Map applies fn to every region. Unknown stays unknown.
func (f Faces) Map(fn func(FaceRegion) FaceRegion) Faces {
	if !f.known {
		return f
	}
	out := make([]FaceRegion, len(f.regions))
	for i, r := range f.regions {
		out[i] = fn(r)
	}
	return Faces{regions: out, known: true}
}

// MarshalJSON encodes unknown as null and known as an array
func (f Faces) MarshalJSON() ([]byte, error) {
	if !f.known {
		return []byte("null"), nil
	}
	if f.regions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f.regions)
}

// UnmarshalJSON decodes null as unknown and any array as known
func (f *Faces) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*f = Faces{}
		return nil
	}
	var regions []FaceRegion
	if err := json.Unmarshal(data, &regions); err != nil {
		return err
	}
	*f = KnownFaces(regions...)
	return nil
}

// ImageState is an immutable description of an image between pipeline steps
type ImageState struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Encoding string `json:"encoding"`
	Faces    Faces  `json:"faces"`
}

// NewImageState creates a state with unknown faces
func NewImageState(width, height int, encoding string) ImageState {
	return ImageState{Width: width, Height: height, Encoding: encoding}
}

// WithSize returns a copy with new dimensions
func (s ImageState) WithSize(width, height int) ImageState {
	s.Width, s.Height = width, height
	return s
}

// WithEncoding returns a copy with a new encoding
func (s ImageState) WithEncoding(encoding string) ImageState {
	s.Encoding = encoding
	return s
}

// WithFaces returns a copy with new face metadata
func (s ImageState) WithFaces(faces Faces) ImageState {
	s.Faces = faces
	return s
}

// CommandFragment is one magick stage: the directives of a single operation in tool order
type CommandFragment []string

// Args splits the directives into argv tokens
func (c CommandFragment) Args() []string {
	args := make([]string, 0, len(c)*2)
	for _, d := range c {
		args = append(args, strings.Fields(d)...)
	}
	return args
}

// String joins the directives with spaces. The result is for logs; use
// Shell for anything handed to a shell.
func (c CommandFragment) String() string {
	return strings.Join(c, " ")
}

// Shell renders the argv tokens for a POSIX shell, quoting every token that
// carries shell metacharacters
func (c CommandFragment) Shell() string {
	return shellescape.QuoteCommand(c.Args())
}
