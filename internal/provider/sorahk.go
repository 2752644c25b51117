package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SoraHKConfig carries the SORA_HK_* environment keys.
type SoraHKConfig struct {
	BaseURL         string
	APIKey          string
	HTTPProxy       string
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
}

// SoraHKProvider wraps an envelope API that returns {"code":200,"data":{...}}
// on success and {"code":<non-200>,"message":"..."} on failure — the
// message is what flows into the error classifier.
type SoraHKProvider struct {
	cfg      SoraHKConfig
	client   *http.Client
	limiters *Limiters
}

func NewSoraHKProvider(cfg SoraHKConfig, limiters *Limiters) *SoraHKProvider {
	return &SoraHKProvider{cfg: cfg, client: &http.Client{}, limiters: limiters}
}

type soraHKEnvelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (p *SoraHKProvider) CreateTask(ctx context.Context, req CreateRequest) (string, error) {
	payload := map[string]any{
		"prompt":            req.Prompt,
		"duration":          req.Duration,
		"resolution":        req.Resolution,
		"is_pro":            req.IsPro,
		"remove_watermark":  true,
	}
	if req.ImageURL != "" {
		payload["image_url"] = req.ImageURL
	}
	if req.ProviderModel != "" {
		payload["model"] = req.ProviderModel
	}

	data, err := p.request(ctx, http.MethodPost, "/create", payload)
	if err != nil {
		return "", err
	}
	taskID, _ := data["task_id"].(string)
	if taskID == "" {
		return "", fmt.Errorf("sora.hk response missing task_id")
	}
	return taskID, nil
}

func (p *SoraHKProvider) GetTask(ctx context.Context, providerTaskID string) (TaskStatus, error) {
	data, err := p.request(ctx, http.MethodGet, "/tasks/"+providerTaskID, nil)
	if err != nil {
		return TaskStatus{}, err
	}
	return TaskStatus{
		Status:   normalizeSoraHKStatus(stringField(data, "status")),
		Progress: intField(data, "progress"),
		VideoURL: stringField(data, "video_url", "url"),
		Raw:      data,
	}, nil
}

func (p *SoraHKProvider) DownloadVideo(ctx context.Context, providerTaskID, videoURL, destPath string) error {
	if videoURL == "" {
		return fmt.Errorf("sora.hk task has no video_url to download")
	}
	return downloadAtomically(ctx, p.client, videoURL, destPath, "Bearer "+p.cfg.APIKey, p.cfg.DownloadTimeout)
}

func (p *SoraHKProvider) request(ctx context.Context, method, endpoint string, payload map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	if err := p.limiters.Wait(ctx, "sora_hk"); err != nil {
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

	var env soraHKEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("invalid json response from sora.hk: %w", err)
	}
	if env.Code != http.StatusOK {
		return nil, fmt.Errorf("sora.hk api error: %s", env.Message)
	}
	return env.Data, nil
}

func normalizeSoraHKStatus(status string) Status {
	switch strings.ToLower(status) {
	case "completed", "succeeded", "success", "done":
		return StatusCompleted
	case "failed", "error", "canceled", "cancelled":
		return StatusFailed
	default:
		return StatusRunning
	}
}
