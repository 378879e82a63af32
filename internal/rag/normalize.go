package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrMalformedEmbedding is returned when a stored embedding cannot be parsed.
var ErrMalformedEmbedding = errors.New("malformed embedding")

// parseEmbedding normalizes the textual forms embeddings are stored in:
// NULL/empty/"[]" (not yet embedded), a JSON array, or a comma or
// whitespace separated list of numbers.
func parseEmbedding(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" || raw == "[]" {
		return nil, nil
	}

	var values []float64
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
		}
	} else {
		fields := strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		values = make([]float64, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
			}
			values = append(values, v)
		}
	}

	if len(values) == 0 {
		return nil, nil
	}

	vec := make([]float32, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite value at position %d", ErrMalformedEmbedding, i)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// parseEmbeddingJSON accepts an embedding that arrived as a JSON value,
// either an array of numbers or a string holding one of the textual forms.
func parseEmbeddingJSON(raw json.RawMessage) ([]float32, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
		}
		return parseEmbedding(s)
	}
	return parseEmbedding(trimmed)
}

// encodeEmbedding returns the stored text form, or nil for a missing embedding
// so the column stays NULL.
func encodeEmbedding(vec []float32) (any, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return string(data), nil
}
