// Package similarity holds the vector helpers behind the similarity index:
// unit normalization and the pgvector text literal.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Dimensions is the width of the stored embedding column.
const Dimensions = 1536

var ErrZeroVector = errors.New("vector has zero magnitude")

// Normalize returns a unit-length copy of v. Zero and non-finite vectors are
// rejected because pgvector cosine distance is undefined for them.
func Normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("vector is empty")
	}
	for i, value := range v {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("vector has non-finite value at index %d", i)
		}
	}
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return nil, ErrZeroVector
	}
	out := make([]float64, len(v))
	copy(out, v)
	floats.Scale(1/norm, out)
	return out, nil
}

// Literal formats v as a pgvector literal, enforcing the column width.
func Literal(values []float64) (string, error) {
	if len(values) != Dimensions {
		return "", fmt.Errorf("expected %d dimensions, got %d", Dimensions, len(values))
	}

	var builder strings.Builder
	builder.Grow(len(values) * 8)
	builder.WriteByte('[')
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return "", fmt.Errorf("vector has non-finite value at index %d", i)
		}
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

// ParseLiteral reads a pgvector text value such as "[0.1,0.2]".
func ParseLiteral(raw string) ([]float64, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, fmt.Errorf("vector literal must be bracketed")
	}
	body := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if body == "" {
		return nil, nil
	}

	parts := strings.Split(body, ",")
	out := make([]float64, 0, len(parts))
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		out = append(out, value)
	}
	return out, nil
}
