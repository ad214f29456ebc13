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

// ollamaClient talks to a self-hosted Ollama instance. It is the cheap
// fallback when the hosted providers are down or over quota.
type ollamaClient struct {
	log        *logger.Logger
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewOllamaClient(log *logger.Logger) (AIProvider, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("missing OLLAMA_BASE_URL")
	}
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = "llava"
	}
	timeoutSec := 60
	if v := os.Getenv("OLLAMA_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	return &ollamaClient{
		log:        log.With("provider", "ollama"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: 1,
	}, nil
}

func (oc *ollamaClient) Name() string { return "ollama" }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (oc *ollamaClient) Classify(ctx context.Context, req ClassificationRequest) (*types.AIResult, error) {
	body := ollamaRequest{
		Model:  oc.model,
		Prompt: fmt.Sprintf(classifyPrompt, req.ImageURL, req.ClaimedMaterial),
		Stream: false,
		Format: "json",
	}

	var resp ollamaResponse
	if err := postJSONWithRetry(ctx, oc.httpClient, "ollama", oc.baseURL+"/api/generate", nil, body, &resp, oc.maxRetries); err != nil {
		return nil, err
	}
	if resp.Response == "" {
		return nil, fmt.Errorf("ollama: empty response")
	}

	var result types.AIResult
	if err := json.Unmarshal([]byte(resp.Response), &result); err != nil {
		return nil, fmt.Errorf("ollama: bad verdict json: %w", err)
	}
	return &result, nil
}
