package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/types"
)

const classifyPrompt = `You are verifying a recycling submission photo.
Image URL: %s
The user claims the item is made of: %s

Respond with a single JSON object, no prose:
{"object_type": one of "cardboard"|"glass"|"metal"|"paper"|"plastic"|"unknown",
 "confidence": number between 0 and 1,
 "authentic": true if this looks like a live photo of a real item rather than a screen, print or stock image,
 "quality": "good"|"fair"|"poor",
 "reasoning": short explanation}`

type geminiClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewGeminiClient(log *logger.Logger) (AIProvider, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	baseURL := os.Getenv("GEMINI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeoutSec := 30
	if v := os.Getenv("GEMINI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	maxRetries := 2
	if v := os.Getenv("GEMINI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}
	return &geminiClient{
		log:        log.With("provider", "gemini"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

func (gc *geminiClient) Name() string { return "gemini" }

type geminiRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (gc *geminiClient) Classify(ctx context.Context, req ClassificationRequest) (*types.AIResult, error) {
	var body geminiRequest
	body.Contents = make([]struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}, 1)
	body.Contents[0].Parts = make([]struct {
		Text string `json:"text"`
	}, 1)
	body.Contents[0].Parts[0].Text = fmt.Sprintf(classifyPrompt, req.ImageURL, req.ClaimedMaterial)
	body.GenerationConfig.ResponseMimeType = "application/json"

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", gc.baseURL, gc.model)
	headers := map[string]string{"x-goog-api-key": gc.apiKey}

	var resp geminiResponse
	if err := postJSONWithRetry(ctx, gc.httpClient, "gemini", url, headers, body, &resp, gc.maxRetries); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini: empty response")
	}

	var result types.AIResult
	if err := json.Unmarshal([]byte(resp.Candidates[0].Content.Parts[0].Text), &result); err != nil {
		return nil, fmt.Errorf("gemini: bad verdict json: %w", err)
	}
	return &result, nil
}
