package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var openAISizeByResolution = map[string]string{
	"horizontal": "1280x720",
	"vertical":   "720x1280",
}

// OpenAIConfig carries the OPENAI_* environment keys. OpenAI is seeded
// disabled by default (see catalog.Seed); this implementation follows the
// same JSON request shape AIHubMix uses since the vendor's actual video
// API was not present in the source material this was adapted from.
type OpenAIConfig struct {
	BaseURL         string
	APIKey          string
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
}

type OpenAIProvider struct {
	cfg      OpenAIConfig
	client   *http.Client
	limiters *Limiters
}

func NewOpenAIProvider(cfg OpenAIConfig, limiters *Limiters) *OpenAIProvider {
	return &OpenAIProvider{cfg: cfg, client: &http.Client{}, limiters: limiters}
}

func (p *OpenAIProvider) CreateTask(ctx context.Context, req CreateRequest) (string, error) {
	if p.cfg.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	model := req.ProviderModel
	if model == "" {
		if req.IsPro {
			model = "sora-2-pro"
		} else {
			model = "sora-2"
		}
	}
	size, ok := openAISizeByResolution[req.Resolution]
	if !ok {
		return "", fmt.Errorf("unsupported resolution for OpenAI: %s", req.Resolution)
	}

	payload := map[string]any{
		"model":   model,
		"prompt":  req.Prompt,
		"size":    size,
		"seconds": strconv.Itoa(req.Duration),
	}
	if req.ImageURL != "" {
		payload["input_reference"] = req.ImageURL
	}

	data, err := p.request(ctx, http.MethodPost, "/v1/videos", payload)
	if err != nil {
		return "", err
	}
	videoID := extractVideoID(data)
	if videoID == "" {
		return "", fmt.Errorf("OpenAI response missing video id")
	}
	return videoID, nil
}

func (p *OpenAIProvider) GetTask(ctx context.Context, providerTaskID string) (TaskStatus, error) {
	if p.cfg.APIKey == "" {
		return TaskStatus{}, fmt.Errorf("OpenAI API key not configured")
	}
	data, err := p.request(ctx, http.MethodGet, "/v1/videos/"+providerTaskID, nil)
	if err != nil {
		return TaskStatus{}, err
	}
	return TaskStatus{
		Status:   normalizeAIHubMixStatus(stringField(data, "status")),
		Progress: intField(data, "progress"),
		VideoURL: stringField(data, "video_url", "url"),
		Raw:      data,
	}, nil
}

func (p *OpenAIProvider) DownloadVideo(ctx context.Context, providerTaskID, videoURL, destPath string) error {
	if p.cfg.APIKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}
	url := videoURL
	if url == "" {
		url = fmt.Sprintf("%s/v1/videos/%s/content", strings.TrimRight(p.cfg.BaseURL, "/"), providerTaskID)
	}
	return downloadAtomically(ctx, p.client, url, destPath, "Bearer "+p.cfg.APIKey, p.cfg.DownloadTimeout)
}

func (p *OpenAIProvider) request(ctx context.Context, method, endpoint string, payload map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	if err := p.limiters.Wait(ctx, "openai"); err != nil {
		return nil, err
	}

	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.cfg.BaseURL, "/")+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("invalid api key (401)")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded (429)")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("OpenAI server error (%d)", resp.StatusCode)
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid json response from OpenAI: %w", err)
	}
	return data, nil
}
