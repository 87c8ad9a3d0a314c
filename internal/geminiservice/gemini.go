/*
Package geminiservice turns a user profile into a prompt, sends it to the
Gemini generateContent endpoint and validates the structured reply into a
fitness.PlanResponse.
*/
package geminiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"FitCoach_V0.1/internal/fitness"
	"github.com/rs/zerolog"
)

// --- Gemini API Configuration ---
const (
	DefaultEndpoint         = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"
	DefaultTimeout          = 60 * time.Second
	DefaultMaxResponseBytes = 1 << 20
	structuredMimeType      = "application/json"
	apiKeyHeader            = "x-goog-api-key"
	errorBodyPreview        = 512
)

// --- Structs for Gemini API Request/Response ---

type GeminiPayload struct {
	Contents          []GeminiContent   `json:"contents"`
	SystemInstruction *GeminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text,omitempty"`
}

type GenerationConfig struct {
	ResponseMimeType string        `json:"responseMimeType"`
	ResponseSchema   *GeminiSchema `json:"responseSchema,omitempty"`
}

type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

// ClientConfig configures a Client. Zero values fall back to the defaults.
type ClientConfig struct {
	Endpoint         string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// Client issues plan requests. It keeps no state between calls and is safe
// for concurrent use.
type Client struct {
	endpoint   string
	maxBytes   int64
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		maxBytes:   cfg.MaxResponseBytes,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- Public Functions ---

// GeneratePlan builds the prompt for the profile and requests a plan.
func (c *Client) GeneratePlan(ctx context.Context, log *zerolog.Logger, profile fitness.UserProfile, apiKey string) (*fitness.PlanResponse, error) {
	return c.RequestPlan(ctx, log, BuildPrompt(profile), apiKey)
}

// RequestPlan sends one request to the generation endpoint and validates the
// reply. There are no retries; every failure is a *PlanError and no partial
// plan is ever returned.
func (c *Client) RequestPlan(ctx context.Context, log *zerolog.Logger, prompt, apiKey string) (*fitness.PlanResponse, error) {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	if apiKey == "" {
		log.Error().Msg("GEMINI_API_KEY is not set, refusing to call the generation endpoint")
		return nil, transportErr(0, ErrMissingAPIKey)
	}

	payloadBytes, err := json.Marshal(GeminiPayload{
		SystemInstruction: &GeminiContent{
			Parts: []GeminiPart{{Text: SystemPrompt}},
		},
		Contents: []GeminiContent{
			{Parts: []GeminiPart{{Text: prompt}}},
		},
		GenerationConfig: &GenerationConfig{
			ResponseMimeType: structuredMimeType,
			ResponseSchema:   PlanSchema,
		},
	})
	if err != nil {
		return nil, transportErr(0, fmt.Errorf("failed to marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payloadBytes))
	if err != nil {
		log.Error().Err(err).Msg("Gemini request could not be built, check GEMINI_ENDPOINT")
		return nil, transportErr(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)

	start := time.Now()
	log.Info().Int("prompt_len", len(prompt)).Msg("Calling Gemini API...")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Gemini request failed")
		return nil, transportErr(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyPreview))
		log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Gemini API returned non-2xx status")
		return nil, transportErr(resp.StatusCode, fmt.Errorf("API returned status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, transportErr(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}
	if int64(len(body)) > c.maxBytes {
		return nil, malformedErr(fmt.Errorf("response exceeds %d bytes", c.maxBytes))
	}

	text, err := extractText(body)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini response envelope could not be decoded")
		return nil, err
	}

	plan, err := ParsePlan(text)
	if err != nil {
		log.Warn().Err(err).Str("kind", KindOf(err).String()).Msg("Gemini reply rejected")
		return nil, err
	}

	log.Info().
		Int("meals", len(plan.DietPlan)).
		Int("days", len(plan.GymPlan)).
		Dur("elapsed", time.Since(start)).
		Msg("Plan generated")
	return plan, nil
}

// extractText pulls the model text out of a generateContent envelope. A body
// without a "candidates" key is taken to be the model text itself, which is
// what simpler generation proxies return.
func extractText(body []byte) (string, error) {
	if !json.Valid(body) {
		return "", malformedErr(errors.New("response body is not valid JSON"))
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", incompleteErr(fmt.Errorf("response body is not a JSON object: %w", err))
	}
	if _, ok := probe["candidates"]; !ok {
		return string(body), nil
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", malformedErr(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", malformedErr(errors.New("no content found in Gemini response"))
	}
	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}
