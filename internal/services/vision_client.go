package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/types"
)

// visionClient is the last-resort provider. Label detection cannot
// judge authenticity or framing quality, so it only contributes a
// material guess with the label score as confidence.
type visionClient struct {
	log       *logger.Logger
	annotator *vision.ImageAnnotatorClient
	maxLabels int
}

var visionLabelMaterials = map[string]types.Material{
	"cardboard":     types.MaterialCardboard,
	"carton":        types.MaterialCardboard,
	"box":           types.MaterialCardboard,
	"glass":         types.MaterialGlass,
	"glass bottle":  types.MaterialGlass,
	"jar":           types.MaterialGlass,
	"metal":         types.MaterialMetal,
	"aluminium":     types.MaterialMetal,
	"aluminum":      types.MaterialMetal,
	"tin can":       types.MaterialMetal,
	"tin":           types.MaterialMetal,
	"paper":         types.MaterialPaper,
	"newspaper":     types.MaterialPaper,
	"plastic":       types.MaterialPlastic,
	"water bottle":  types.MaterialPlastic,
	"plastic wrap":  types.MaterialPlastic,
	"bottle":        types.MaterialPlastic,
}

func NewVisionClient(log *logger.Logger) (AIProvider, error) {
	serviceLog := log.With("provider", "gcp_vision")
	saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")

	ctx := context.Background()
	var (
		annotator *vision.ImageAnnotatorClient
		err       error
	)
	if saPath != "" {
		annotator, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(saPath))
	} else {
		annotator, err = vision.NewImageAnnotatorClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &visionClient{
		log:       serviceLog,
		annotator: annotator,
		maxLabels: 10,
	}, nil
}

func (vc *visionClient) Name() string { return "gcp_vision" }

func (vc *visionClient) Classify(ctx context.Context, req ClassificationRequest) (*types.AIResult, error) {
	br := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{
					Source: &visionpb.ImageSource{ImageUri: req.ImageURL},
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: int32(vc.maxLabels)},
				},
			},
		},
	}
	resp, err := vc.annotator.BatchAnnotateImages(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, fmt.Errorf("vision: empty response")
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	if len(r0.LabelAnnotations) == 0 {
		return nil, fmt.Errorf("vision: no labels")
	}
	return resultFromLabels(r0.LabelAnnotations), nil
}

// resultFromLabels folds label annotations into a verdict, keeping the
// best-scoring label that maps onto a known material.
func resultFromLabels(labels []*visionpb.EntityAnnotation) *types.AIResult {
	detected := "unknown"
	confidence := 0.0
	matchedLabel := ""
	for _, label := range labels {
		if label == nil {
			continue
		}
		material, ok := visionLabelMaterials[strings.ToLower(label.GetDescription())]
		if !ok {
			continue
		}
		if float64(label.GetScore()) > confidence {
			detected = string(material)
			confidence = float64(label.GetScore())
			matchedLabel = label.GetDescription()
		}
	}
	if detected == "unknown" {
		return &types.AIResult{
			ObjectType: "unknown",
			Confidence: 0,
			Authentic:  true,
			Quality:    "fair",
			Reasoning:  "no material label detected",
		}
	}
	return &types.AIResult{
		ObjectType: detected,
		Confidence: confidence,
		Authentic:  true,
		Quality:    "fair",
		Reasoning:  fmt.Sprintf("label %q score %.2f", matchedLabel, confidence),
	}
}
