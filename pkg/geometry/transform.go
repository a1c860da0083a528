package geometry

import "github.com/menta2k/magickplan/pkg/types"

// Transform is one elementary step applied to face rectangles.
// The set is closed: Scale and Translate are the only implementations.
type Transform interface {
	affine() Affine
}

// ScaleOp multiplies coordinates and extents by Factor
type ScaleOp struct {
	Factor float64
}

// TranslateOp adds X and Y to the rectangle origin
type TranslateOp struct {
	X float64
	Y float64
}

// Scale returns a uniform scale step
func Scale(factor float64) Transform {
	return ScaleOp{Factor: factor}
}

// Translate returns a translate step
func Translate(x, y float64) Transform {
	return TranslateOp{X: x, Y: y}
}

func (s ScaleOp) affine() Affine {
	return Affine{S: s.Factor}
}

func (t TranslateOp) affine() Affine {
	return Affine{S: 1, Tx: t.X, Ty: t.Y}
}

// Affine maps p to S*p + (Tx, Ty)
type Affine struct {
	S  float64
	Tx float64
	Ty float64
}

// Identity returns the transform that leaves rectangles unchanged
func Identity() Affine {
	return Affine{S: 1}
}

// Then returns the transform that applies a first and next second
func (a Affine) Then(next Affine) Affine {
	return Affine{
		S:  next.S * a.S,
		Tx: next.S*a.Tx + next.Tx,
		Ty: next.S*a.Ty + next.Ty,
	}
}

// ApplyFace maps a face rectangle through the transform
func (a Affine) ApplyFace(f types.FaceRegion) types.FaceRegion {
	f.X = a.S*f.X + a.Tx
	f.Y = a.S*f.Y + a.Ty
	f.Width = a.S * f.Width
	f.Height = a.S * f.Height
	return f
}

// Fold reduces an ordered list of steps into a single affine transform
func Fold(ops ...Transform) Affine {
	out := Identity()
	for _, op := range ops {
		out = out.Then(op.affine())
	}
	return out
}

// TransformFace applies ops to f in order
func TransformFace(f types.FaceRegion, ops ...Transform) types.FaceRegion {
	return Fold(ops...).ApplyFace(f)
}

// TransformFaces applies ops to every known face
func TransformFaces(faces types.Faces, ops ...Transform) types.Faces {
	a := Fold(ops...)
	return faces.Map(a.ApplyFace)
}

// RotateFace maps f through clockwise quarter turns of an image sized w by h
func RotateFace(f types.FaceRegion, quarterTurns int, w, h float64) types.FaceRegion {
	for i := 0; i < ((quarterTurns%4)+4)%4; i++ {
		f = types.FaceRegion{
			X:          h - (f.Y + f.Height),
			Y:          f.X,
			Width:      f.Height,
			Height:     f.Width,
			Confidence: f.Confidence,
		}
		w, h = h, w
	}
	return f
}
