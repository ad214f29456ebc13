package services

import (
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
)

func TestResultFromLabels(t *testing.T) {
	cases := []struct {
		name       string
		labels     []*visionpb.EntityAnnotation
		objectType string
		confidence float64
	}{
		{
			name: "best material label wins",
			labels: []*visionpb.EntityAnnotation{
				{Description: "Drink", Score: 0.98},
				{Description: "Glass bottle", Score: 0.91},
				{Description: "Bottle", Score: 0.95},
			},
			objectType: "plastic",
			confidence: 0.95,
		},
		{
			name: "non-material labels fall through to unknown",
			labels: []*visionpb.EntityAnnotation{
				{Description: "Furniture", Score: 0.9},
				{Description: "Table", Score: 0.8},
			},
			objectType: "unknown",
			confidence: 0,
		},
		{
			name: "case-insensitive label match",
			labels: []*visionpb.EntityAnnotation{
				{Description: "Tin Can", Score: 0.77},
			},
			objectType: "metal",
			confidence: 0.77,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := resultFromLabels(tc.labels)
			if result.ObjectType != tc.objectType {
				t.Fatalf("expected %q, got %q", tc.objectType, result.ObjectType)
			}
			if !almostEqual(float64(float32(tc.confidence)), result.Confidence) {
				t.Fatalf("expected confidence %v, got %v", tc.confidence, result.Confidence)
			}
			if result.Quality != "fair" {
				t.Fatalf("label detection cannot judge framing, want fair quality, got %q", result.Quality)
			}
		})
	}
}
