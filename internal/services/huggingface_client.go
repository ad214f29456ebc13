package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/types"
)

type huggingFaceClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewHuggingFaceClient(log *logger.Logger) (AIProvider, error) {
	apiKey := os.Getenv("HUGGINGFACE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing HUGGINGFACE_API_KEY")
	}
	baseURL := os.Getenv("HUGGINGFACE_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co"
	}
	model := os.Getenv("HUGGINGFACE_MODEL")
	if model == "" {
		model = "Salesforce/blip-vqa-base"
	}
	timeoutSec := 45
	if v := os.Getenv("HUGGINGFACE_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	return &huggingFaceClient{
		log:        log.With("provider", "huggingface"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: 2,
	}, nil
}

func (hc *huggingFaceClient) Name() string { return "huggingface" }

type huggingFaceRequest struct {
	Inputs struct {
		Image    string `json:"image"`
		Question string `json:"question"`
	} `json:"inputs"`
}

type huggingFaceAnswer struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

// Classify asks a VQA model what material the pictured item is. The
// inference API returns answer candidates, not the structured verdict
// the other providers emit, so authenticity and quality are left at
// their conservative defaults here.
func (hc *huggingFaceClient) Classify(ctx context.Context, req ClassificationRequest) (*types.AIResult, error) {
	var body huggingFaceRequest
	body.Inputs.Image = req.ImageURL
	body.Inputs.Question = "What material is this item made of: cardboard, glass, metal, paper or plastic?"

	url := fmt.Sprintf("%s/models/%s", hc.baseURL, hc.model)
	headers := map[string]string{"Authorization": "Bearer " + hc.apiKey}

	var answers []huggingFaceAnswer
	if err := postJSONWithRetry(ctx, hc.httpClient, "huggingface", url, headers, body, &answers, hc.maxRetries); err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("huggingface: empty response")
	}

	top := answers[0]
	detected := normalizeMaterialAnswer(top.Answer)
	return &types.AIResult{
		ObjectType: detected,
		Confidence: top.Score,
		Authentic:  true,
		Quality:    "fair",
		Reasoning:  fmt.Sprintf("vqa answer %q", top.Answer),
	}, nil
}

func normalizeMaterialAnswer(answer string) string {
	answer = strings.ToLower(strings.TrimSpace(answer))
	for _, m := range types.AllMaterials {
		if strings.Contains(answer, string(m)) {
			return string(m)
		}
	}
	return "unknown"
}

