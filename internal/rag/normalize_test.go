package rag

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestParseEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []float32
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"whitespace", "   ", nil, false},
		{"json null", "null", nil, false},
		{"empty array", "[]", nil, false},
		{"json array", "[0.5, -1, 2e-1]", []float32{0.5, -1, 0.2}, false},
		{"comma separated", "0.5,1,2", []float32{0.5, 1, 2}, false},
		{"space separated", "0.5 1\t2", []float32{0.5, 1, 2}, false},
		{"mixed separators", " 1, 2  3 ", []float32{1, 2, 3}, false},
		{"broken json", "[1, 2", nil, true},
		{"non numeric", "1,two,3", nil, true},
		{"non finite", "1,NaN", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEmbedding(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEmbedding) {
					t.Errorf("expected ErrMalformedEmbedding, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseEmbeddingJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []float32
	}{
		{"absent", ``, nil},
		{"null", `null`, nil},
		{"array", `[1, 2]`, []float32{1, 2}},
		{"string holding array", `"[1, 2]"`, []float32{1, 2}},
		{"string holding csv", `"1,2"`, []float32{1, 2}},
		{"empty string", `""`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEmbeddingJSON(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeEmbedding(t *testing.T) {
	v, err := encodeEmbedding(nil)
	if err != nil || v != nil {
		t.Errorf("encodeEmbedding(nil) = %v, %v; want nil, nil", v, err)
	}

	v, err = encodeEmbedding([]float32{0.25, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("expected string, got %T", v)
	}
	back, err := parseEmbedding(s)
	if err != nil || !reflect.DeepEqual(back, []float32{0.25, 1}) {
		t.Errorf("stored form %q parsed to %v, %v", s, back, err)
	}
}
