package operation

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"

	"github.com/menta2k/magickplan/pkg/types"
)

// Operation is one declarative pipeline step. Both methods are pure functions
// of the configuration bound at construction and the state passed in.
type Operation interface {
	// Requirements lists the metadata the incoming state must carry.
	Requirements() []types.Requirement
	// Execute returns the magick stage for this step and the state it produces.
	Execute(state types.ImageState) (types.CommandFragment, types.ImageState, error)
}

// Constructor builds an operation from raw option keys
type Constructor func(options map[string]any) (Operation, error)

var registry = map[string]Constructor{
	"fill":   NewFill,
	"resize": NewResize,
	"crop":   NewCrop,
	"rotate": NewRotate,
	"pad":    NewPad,
	"format": NewFormat,
}

// New builds the operation registered under kind
func New(kind string, options map[string]any) (Operation, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, &ConfigurationError{Op: kind, Reason: "unknown operation type"}
	}
	return ctor(options)
}

// Kinds returns the registered operation types in sorted order
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Spec is the serialized form of a pipeline step: a type tag plus its options.
// JSON form is flat, e.g. {"type":"fill","width":200,"height":200}.
type Spec struct {
	Type    string
	Options map[string]any
}

// Build constructs the operation described by s
func (s Spec) Build() (Operation, error) {
	return New(s.Type, s.Options)
}

// MarshalJSON flattens the options next to the type tag
func (s Spec) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Options)+1)
	for k, v := range s.Options {
		out[k] = v
	}
	out["type"] = s.Type
	return json.Marshal(out)
}

// UnmarshalJSON splits the type tag from the remaining option keys
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, ok := raw["type"].(string)
	if !ok || kind == "" {
		return fmt.Errorf("operation is missing a string \"type\"")
	}
	delete(raw, "type")
	s.Type = kind
	s.Options = raw
	return nil
}

// decode overlays options on out, which already holds the defaults.
// Unknown keys are rejected.
func decode(op string, options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s decoder: %w", op, err)
	}
	if err := dec.Decode(options); err != nil {
		return &ConfigurationError{Op: op, Reason: err.Error()}
	}
	return nil
}

func outputMarker(state types.ImageState) string {
	return state.Encoding + ":-"
}
