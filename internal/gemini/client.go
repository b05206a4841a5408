// Package gemini implements integration with Google's Gemini API.
// It provides the text-mixing and image-generation providers for the
// batch pipeline behind a single client interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/crowdcanvas/crowdcanvas/internal/config"
)

// Client defines the AI operations the batch pipeline consumes.
type Client interface {
	// MixTexts collapses the given message texts into one description of at
	// most maxLen characters.
	MixTexts(ctx context.Context, texts []string, maxLen int) (string, error)

	// GenerateImage renders an image for the given prompt. Returns the raw
	// image bytes and their MIME type.
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)
}

type sdkClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	textModel     string
	imageModel    string
	maxRetries    int
	retryDelay    time.Duration

	// Image generation hits a costly, quota-limited endpoint; the limiter
	// bounds the outbound request rate regardless of caller behavior.
	imageLimiter *rate.Limiter
}

// NewClient creates a new Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "text_model", cfg.TextModel, "image_model", cfg.ImageModel)
	return &sdkClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: baseCfg,
		textModel:     cfg.TextModel,
		imageModel:    cfg.ImageModel,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
		imageLimiter:  rate.NewLimiter(rate.Every(cfg.RateInterval), cfg.RateBurst),
	}, nil
}

// retriable reports whether the API error code is worth retrying: transient
// server errors and quota exhaustion.
func retriable(code int) bool {
	return code == 429 || code == 500 || code == 503
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "model", modelName, "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && retriable(apiErr.Code) {
			if i < c.maxRetries {
				// Exponential backoff; quota errors get the same treatment
				// since the server-suggested delay is not always present.
				delay := c.retryDelay * (1 << i)
				c.log.InfoContext(ctx, "Retrying Gemini API call", "delay", delay, "code", apiErr.Code)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries", "error", err, "code", apiErr.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	return nil, err
}

func (c *sdkClient) MixTexts(ctx context.Context, texts []string, maxLen int) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("no texts to mix")
	}

	var prompt string
	if len(texts) == 1 {
		prompt = fmt.Sprintf(MixSingleInstruction, maxLen, texts[0], maxLen)
	} else {
		prompt = fmt.Sprintf(MixCombinedInstruction, maxLen, strings.Join(texts, "; "), maxLen)
	}

	c.log.DebugContext(ctx, "Mixing texts", "count", len(texts), "max_len", maxLen)

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.generateContentWithRetries(ctx, c.textModel, contents, c.contentConfig)
	if err != nil {
		return "", fmt.Errorf("failed to mix texts: %w", err)
	}

	mixed, err := c.extractText(ctx, resp)
	if err != nil {
		return "", fmt.Errorf("failed to extract mixed text: %w", err)
	}
	return strings.TrimSpace(mixed), nil
}

func (c *sdkClient) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, "", fmt.Errorf("image prompt cannot be empty")
	}

	if err := c.imageLimiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	c.log.InfoContext(ctx, "Generating image", "prompt_len", len(prompt), "model", c.imageModel)

	copyCfg := *c.contentConfig
	copyCfg.ResponseModalities = []string{"TEXT", "IMAGE"}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.generateContentWithRetries(ctx, c.imageModel, contents, &copyCfg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate image: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Image generation blocked", "reason", reasonMsg)
		return nil, "", fmt.Errorf("image generation blocked by safety filter: %s", reasonMsg)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				c.log.InfoContext(ctx, "Image generated successfully", "bytes", len(part.InlineData.Data), "mime_type", part.InlineData.MIMEType)
				return part.InlineData.Data, part.InlineData.MIMEType, nil
			}
		}
	}

	return nil, "", fmt.Errorf("gemini response contained no image data")
}

func (c *sdkClient) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("request blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("gemini returned no content, finish reason: %s", finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}
