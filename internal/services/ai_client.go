package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/types"
)

// ClassificationRequest carries everything a provider needs to judge a
// submission image.
type ClassificationRequest struct {
	ImageURL        string
	ClaimedMaterial types.Material
}

// AIProvider is one classification backend in the fallback chain.
type AIProvider interface {
	Name() string
	Classify(ctx context.Context, req ClassificationRequest) (*types.AIResult, error)
}

type aiHTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *aiHTTPError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	if code >= 500 && code <= 599 {
		return true
	}
	return false
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}
	var httpErr *aiHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

// AIClientService walks a provider chain until one returns a verdict,
// then turns the verdict into a score in [0,1]. When every provider
// fails the submission gets a neutral score rather than a rejection, so
// provider outages never punish honest users.
type AIClientService interface {
	Classify(ctx context.Context, req ClassificationRequest) (*types.AIResult, float64)
	Score(result *types.AIResult, claimed types.Material) float64
	Providers() []string
}

type aiClientService struct {
	log       *logger.Logger
	providers []AIProvider
}

const neutralAIScore = 0.5

// NewAIClientService builds the chain from AI_PROVIDER_ORDER, a
// comma-separated list of provider names. Unknown names are skipped and
// providers whose construction fails (missing credentials) are dropped
// with a warning, so a partially configured environment still works.
func NewAIClientService(log *logger.Logger) AIClientService {
	serviceLog := log.With("service", "AIClientService")

	order := os.Getenv("AI_PROVIDER_ORDER")
	if order == "" {
		order = "gemini,ollama,huggingface,gcp_vision"
	}

	var providers []AIProvider
	for _, name := range strings.Split(order, ",") {
		name = strings.TrimSpace(name)
		var (
			p   AIProvider
			err error
		)
		switch name {
		case "gemini":
			p, err = NewGeminiClient(serviceLog)
		case "ollama":
			p, err = NewOllamaClient(serviceLog)
		case "huggingface":
			p, err = NewHuggingFaceClient(serviceLog)
		case "gcp_vision":
			p, err = NewVisionClient(serviceLog)
		default:
			serviceLog.Warn("unknown ai provider in AI_PROVIDER_ORDER", "provider", name)
			continue
		}
		if err != nil {
			serviceLog.Warn("ai provider unavailable", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		serviceLog.Warn("no ai providers configured, all submissions will score neutral")
	}
	return &aiClientService{log: serviceLog, providers: providers}
}

func NewAIClientServiceWithProviders(log *logger.Logger, providers []AIProvider) AIClientService {
	return &aiClientService{log: log.With("service", "AIClientService"), providers: providers}
}

func (acs *aiClientService) Classify(ctx context.Context, req ClassificationRequest) (*types.AIResult, float64) {
	for _, p := range acs.providers {
		if ctx.Err() != nil {
			break
		}
		result, err := p.Classify(ctx, req)
		if err != nil {
			acs.log.Warn("ai provider failed, falling through", "provider", p.Name(), "error", err)
			continue
		}
		if result == nil {
			continue
		}
		result.Provider = p.Name()
		return result, acs.Score(result, req.ClaimedMaterial)
	}
	return nil, neutralAIScore
}

// nearEquivalent pairs materials a classifier routinely confuses.
func nearEquivalent(a, b types.Material) bool {
	if a == types.MaterialPaper && b == types.MaterialCardboard {
		return true
	}
	if a == types.MaterialCardboard && b == types.MaterialPaper {
		return true
	}
	return false
}

// Providers reports the names of the configured chain, in order.
func (acs *aiClientService) Providers() []string {
	names := make([]string, 0, len(acs.providers))
	for _, p := range acs.providers {
		names = append(names, p.Name())
	}
	return names
}

func (acs *aiClientService) Score(result *types.AIResult, claimed types.Material) float64 {
	if result == nil {
		return neutralAIScore
	}
	score := 0.0
	detected := types.Material(strings.ToLower(result.ObjectType))
	if detected == claimed {
		score += 0.5
	} else if nearEquivalent(detected, claimed) {
		score += 0.25
	}
	score += 0.3 * result.Confidence
	if result.Authentic {
		score += 0.2
	}
	switch result.Quality {
	case "good":
		score += 0.1
	case "poor":
		score -= 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}
