package operation

import (
	"fmt"
	"strings"

	"github.com/menta2k/magickplan/pkg/types"
)

// Encodings lists the output containers format accepts
var Encodings = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
	"tiff": true,
	"avif": true,
}

// FormatConfig selects an output encoding. Quality 0 leaves the tool default.
type FormatConfig struct {
	Type    string `mapstructure:"type"`
	Quality int    `mapstructure:"quality"`
}

// Format re-encodes the image without touching its geometry
type Format struct {
	Type    string
	Quality int
}

// NewFormat builds a format from raw options. The encoding is read from
// the "to" key because "type" names the operation itself.
func NewFormat(options map[string]any) (Operation, error) {
	var raw struct {
		To      string `mapstructure:"to"`
		Quality int    `mapstructure:"quality"`
	}
	if err := decode("format", options, &raw); err != nil {
		return nil, err
	}
	return NewFormatWithConfig(FormatConfig{Type: raw.To, Quality: raw.Quality})
}

// NewFormatWithConfig validates cfg and builds a format
func NewFormatWithConfig(cfg FormatConfig) (*Format, error) {
	t := strings.ToLower(strings.TrimSpace(cfg.Type))
	if t == "jpg" {
		t = "jpeg"
	}
	if !Encodings[t] {
		return nil, invalid("format", "to", fmt.Sprintf("unsupported encoding %q", cfg.Type))
	}
	if cfg.Quality < 0 || cfg.Quality > 100 {
		return nil, invalid("format", "quality", fmt.Sprintf("must be within 0..100, got %d", cfg.Quality))
	}
	return &Format{Type: t, Quality: cfg.Quality}, nil
}

// Requirements returns nothing
func (f *Format) Requirements() []types.Requirement {
	return nil
}

// Execute plans the re-encode against state
func (f *Format) Execute(state types.ImageState) (types.CommandFragment, types.ImageState, error) {
	if !Encodings[f.Type] {
		return nil, state, invalid("format", "to", fmt.Sprintf("unsupported encoding %q", f.Type))
	}

	next := state.WithEncoding(f.Type)
	cmd := types.CommandFragment{"-"}
	if f.Quality > 0 {
		cmd = append(cmd, fmt.Sprintf("-quality %d", f.Quality))
	}
	cmd = append(cmd, outputMarker(next))
	return cmd, next, nil
}
