package biometric

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// ErrNoFeatures is returned by extractors that could not find a usable
// feature set in the sample.
var ErrNoFeatures = errors.New("biometric: no features in sample")

// Features is the output of a FeatureExtractor.
type Features struct {
	Vector     []float64
	Confidence float64
	// Preview is an optional artifact (a thumbnail, a crop) stored via a
	// PreviewStore. It is never compared.
	Preview []byte
}

// FeatureExtractor turns a raw sample into a feature vector. Implementations
// wrap whatever model the deployment uses.
type FeatureExtractor interface {
	Extract(ctx context.Context, sample []byte) (Features, error)
}

// ExtractorFunc adapts a function to FeatureExtractor.
type ExtractorFunc func(ctx context.Context, sample []byte) (Features, error)

func (f ExtractorFunc) Extract(ctx context.Context, sample []byte) (Features, error) {
	return f(ctx, sample)
}

// VectorExtractor accepts samples that are already feature vectors, for
// deployments where extraction runs on the client device. A sample is either
// a JSON array of numbers or an object {"vector": [...], "preview": "<base64>"}
// carrying a preview artifact along.
type VectorExtractor struct{}

func (VectorExtractor) Extract(ctx context.Context, sample []byte) (Features, error) {
	if err := ctx.Err(); err != nil {
		return Features{}, err
	}
	var in struct {
		Vector  []float64 `json:"vector"`
		Preview []byte    `json:"preview"`
	}
	var err error
	if trimmed := bytes.TrimSpace(sample); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &in)
	} else {
		err = json.Unmarshal(sample, &in.Vector)
	}
	if err != nil || len(in.Vector) == 0 {
		return Features{}, ErrNoFeatures
	}
	return Features{Vector: in.Vector, Confidence: 1, Preview: in.Preview}, nil
}

// PreviewStore persists preview artifacts under a caller-chosen key.
type PreviewStore interface {
	PutPreview(ctx context.Context, key string, data []byte) error
	DeletePreview(ctx context.Context, key string) error
}
