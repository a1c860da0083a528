package detection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/menta2k/magickplan/pkg/client"
	"github.com/menta2k/magickplan/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt is the default prompt for face detection
const DefaultPrompt = `You are a face locator.

Return JSON only:
{
  "faces": [
    {"confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- One entry per visible human face, tightly enclosing forehead to chin.
- List faces from left to right.
- Do not guess identities.
- If there are no faces, return {"faces": [], "description": "..."}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// MinConfidence drops faces the model is unsure about
const MinConfidence = 0.2

// Preparer turns source bytes into a base64 payload a vision model accepts
type Preparer interface {
	PrepareImageForModel(data []byte) (string, error)
}

// VisionDetector finds faces by asking a multimodal model
type VisionDetector struct {
	client   client.VisionClient
	preparer Preparer
	model    string
	prompt   string
}

// NewVisionDetector creates a detector backed by a vision client
func NewVisionDetector(c client.VisionClient, preparer Preparer, model string) *VisionDetector {
	return &VisionDetector{
		client:   c,
		preparer: preparer,
		model:    model,
		prompt:   DefaultPrompt,
	}
}

// WithPrompt returns a copy of the detector using a custom prompt
func (d *VisionDetector) WithPrompt(prompt string) *VisionDetector {
	cp := *d
	cp.prompt = prompt
	return &cp
}

// CacheNamespace separates cached results of different models and prompts
func (d *VisionDetector) CacheNamespace() string {
	sum := sha256.Sum256([]byte(d.prompt))
	return d.model + ":" + hex.EncodeToString(sum[:6])
}

// DetectFaces asks the model for faces and converts them to pixel regions of src
func (d *VisionDetector) DetectFaces(ctx context.Context, src Source) ([]types.FaceRegion, error) {
	if src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("source has non-positive size %dx%d", src.Width, src.Height)
	}

	imgB64, err := d.preparer.PrepareImageForModel(src.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image for model: %w", err)
	}

	analysis, err := d.client.LocateFaces(ctx, d.model, d.prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to locate faces: %w", err)
	}

	return toRegions(analysis, src.Width, src.Height), nil
}

// Describe asks the model for a plain description of src, to check it can see images
func (d *VisionDetector) Describe(ctx context.Context, src Source) (string, error) {
	imgB64, err := d.preparer.PrepareImageForModel(src.Data)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image for model: %w", err)
	}
	return d.client.SimpleQuery(ctx, d.model, SimpleTestPrompt, imgB64)
}

// toRegions converts normalized model boxes into pixel regions, dropping
// degenerate and low confidence entries
func toRegions(analysis *types.FaceAnalysis, width, height int) []types.FaceRegion {
	regions := make([]types.FaceRegion, 0, len(analysis.Faces))
	fw, fh := float64(width), float64(height)
	for _, f := range analysis.Faces {
		if f.Confidence > 0 && f.Confidence < MinConfidence {
			continue
		}
		b := normalizeBox(f.Box, width, height)
		if b.W <= 0 || b.H <= 0 {
			continue
		}
		regions = append(regions, types.FaceRegion{
			X:          b.X * fw,
			Y:          b.Y * fh,
			Width:      b.W * fw,
			Height:     b.H * fh,
			Confidence: f.Confidence,
		})
	}
	return regions
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps box coordinates within [0,1] and the box inside the image.
// Models occasionally answer in pixels; those boxes are rescaled.
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		b = types.Box{
			X: b.X / float64(imgW),
			Y: b.Y / float64(imgH),
			W: b.W / float64(imgW),
			H: b.H / float64(imgH),
		}
	}

	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.X+b.W, 0, 1) - x,
		H: clamp(b.Y+b.H, 0, 1) - y,
	}
}
