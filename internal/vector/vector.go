// Package vector holds the pgvector wire helpers shared by the storage and
// search layers.
package vector

import (
	"fmt"
	"strings"
)

// ToLiteral renders v as a pgvector input literal, e.g. "[0.1,-0.2,0.3]".
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Dim-checked literal for query vectors; returns an error instead of letting
// postgres reject the cast with an opaque message.
func ToLiteralDim(v []float32, dim int) (string, error) {
	if dim > 0 && len(v) != dim {
		return "", fmt.Errorf("vector has %d dimensions, want %d", len(v), dim)
	}
	return ToLiteral(v), nil
}
