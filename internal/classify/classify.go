// Package classify adapts symbol recognition models to predict.Classifier.
package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"slices"

	"github.com/zephyrtronium/scribble/glyph"
	"github.com/zephyrtronium/scribble/predict"
)

// Alphabet is the set of labels a model may produce.
type Alphabet []string

// Check returns label if it is in the alphabet and predict.Unknown otherwise.
// An empty alphabet accepts everything.
func (a Alphabet) Check(label string) string {
	if len(a) == 0 || label == predict.Unknown || slices.Contains(a, label) {
		return label
	}
	return predict.Unknown
}

// Answer is a model's reading of one symbol.
type Answer struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Resolve applies the confidence threshold and the alphabet.
func (a Answer) Resolve(threshold float64, alpha Alphabet) string {
	if a.Label == "" || a.Confidence < threshold {
		return predict.Unknown
	}
	return alpha.Check(a.Label)
}

func parseAnswer(b []byte) (Answer, error) {
	var a Answer
	if err := json.Unmarshal(b, &a); err != nil {
		return Answer{}, fmt.Errorf("bad answer %q: %w", b, err)
	}
	return a, nil
}

// encode normalizes a raster to a size×size square and encodes it as PNG.
func encode(raster image.Image, size int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, glyph.Normalize(raster, size)); err != nil {
		return nil, fmt.Errorf("encoding raster: %w", err)
	}
	return buf.Bytes(), nil
}
