package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/magickplan/pkg/types"
)

// ErrSourceTooLarge is returned when a source exceeds MaxSourceBytes
var ErrSourceTooLarge = errors.New("source image exceeds size limit")

// ErrUnknownFormat is returned when no registered decoder recognises a source
var ErrUnknownFormat = errors.New("unrecognised image format")

// Options configures a Processor
type Options struct {
	// ModelFormat is the encoding sent to vision models: "jpeg" or "png".
	ModelFormat string
	// ModelMaxDim bounds the longest side of images sent to vision models.
	ModelMaxDim int
	// ModelQuality is the JPEG quality for model input.
	ModelQuality int
	// MaxSourceBytes limits LoadSource; zero disables the limit.
	MaxSourceBytes int64
	// FetchTimeout bounds URL downloads.
	FetchTimeout time.Duration
}

// DefaultOptions returns the processor defaults
func DefaultOptions() Options {
	return Options{
		ModelFormat:    "jpeg",
		ModelMaxDim:    1024,
		ModelQuality:   85,
		MaxSourceBytes: 20 << 20,
		FetchTimeout:   30 * time.Second,
	}
}

// Processor reads source images and prepares them for the planner and the detectors
type Processor struct {
	opts   Options
	client *http.Client
}

// NewProcessor creates a new image processor with default options
func NewProcessor() *Processor {
	return NewProcessorWithOptions(DefaultOptions())
}

// NewProcessorWithOptions creates a processor with custom options
func NewProcessorWithOptions(opts Options) *Processor {
	return &Processor{
		opts:   opts,
		client: &http.Client{Timeout: opts.FetchTimeout},
	}
}

// Inspect reads the image header and returns the initial pipeline state.
// Faces are left unknown.
func (p *Processor) Inspect(data []byte) (types.ImageState, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return types.NewImageState(cfg.Width, cfg.Height, normalizeFormat(format)), nil
	}

	// x/image/webp rejects some extended layouts the libwebp reader accepts
	if w, h, _, werr := webp.GetInfo(data); werr == nil && w > 0 && h > 0 {
		return types.NewImageState(w, h, "webp"), nil
	}
	return types.ImageState{}, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
}

// LoadSource reads image bytes from either a file path or an http(s) URL
func (p *Processor) LoadSource(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.loadURL(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()
	return p.readLimited(f)
}

func (p *Processor) loadURL(ctx context.Context, imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "magickplan/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}
	return p.readLimited(resp.Body)
}

func (p *Processor) readLimited(r io.Reader) ([]byte, error) {
	if p.opts.MaxSourceBytes > 0 {
		r = io.LimitReader(r, p.opts.MaxSourceBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if p.opts.MaxSourceBytes > 0 && int64(len(data)) > p.opts.MaxSourceBytes {
		return nil, ErrSourceTooLarge
	}
	return data, nil
}

// PrepareImageForModel decodes the source, bounds its size and returns it base64 encoded
func (p *Processor) PrepareImageForModel(data []byte) (string, error) {
	img, err := decodeImageFromBytes(data)
	if err != nil {
		return "", err
	}

	if maxDim := p.opts.ModelMaxDim; maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(p.opts.ModelFormat) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("failed to encode model input: %w", err)
		}
	default:
		quality := p.opts.ModelQuality
		if quality <= 0 {
			quality = 85
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", fmt.Errorf("failed to encode model input: %w", err)
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

func normalizeFormat(format string) string {
	switch format {
	case "jpg":
		return "jpeg"
	case "":
		return "jpeg"
	}
	return format
}
