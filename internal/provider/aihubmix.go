package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var aihubmixSizeByResolution = map[string]string{
	"horizontal": "1280x720",
	"vertical":   "720x1280",
}

var aihubmixSupportedSeconds = map[int]bool{4: true, 8: true, 12: true}

// AIHubMixConfig carries the per-provider connection settings read from
// the AIHUBMIX_* environment keys in spec §6.
type AIHubMixConfig struct {
	BaseURL           string
	APIKey            string
	HTTPProxy         string
	RequestTimeout    time.Duration
	DownloadTimeout   time.Duration
}

// AIHubMixProvider talks JSON (or multipart, when a reference image is
// supplied) to the AIHubMix video-generation API. It is the only
// provider here that uploads a reference image as multipart; OpenAI
// sends the same JSON shape with the image as a URL field, and SoraHK
// speaks its own envelope API (see openai.go, sorahk.go).
type AIHubMixProvider struct {
	cfg      AIHubMixConfig
	client   *http.Client
	limiters *Limiters
}

func NewAIHubMixProvider(cfg AIHubMixConfig, limiters *Limiters) *AIHubMixProvider {
	transport := &http.Transport{}
	if cfg.HTTPProxy != "" {
		if proxyURL, err := url.Parse(cfg.HTTPProxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &AIHubMixProvider{
		cfg:      cfg,
		client:   &http.Client{Transport: transport},
		limiters: limiters,
	}
}

func (p *AIHubMixProvider) CreateTask(ctx context.Context, req CreateRequest) (string, error) {
	if p.cfg.APIKey == "" {
		return "", fmt.Errorf("AIHubMix API key not configured")
	}

	model := req.ProviderModel
	if model == "" {
		if req.IsPro {
			model = "sora-2-pro"
		} else {
			model = "sora-2"
		}
	}

	size, ok := aihubmixSizeByResolution[req.Resolution]
	if !ok {
		return "", fmt.Errorf("unsupported resolution for AIHubMix: %s", req.Resolution)
	}
	if !aihubmixSupportedSeconds[req.Duration] {
		return "", fmt.Errorf("unsupported duration for AIHubMix: %d", req.Duration)
	}

	var data map[string]any
	var err error
	if req.ImageURL != "" {
		data, err = p.createWithReference(ctx, req, model, size)
	} else {
		data, err = p.request(ctx, http.MethodPost, "/videos", map[string]any{
			"model":   model,
			"prompt":  req.Prompt,
			"size":    size,
			"seconds": strconv.Itoa(req.Duration),
		}, nil)
	}
	if err != nil {
		return "", err
	}

	videoID := extractVideoID(data)
	if videoID == "" {
		return "", fmt.Errorf("AIHubMix response missing video id")
	}
	return videoID, nil
}

func (p *AIHubMixProvider) createWithReference(ctx context.Context, req CreateRequest, model, size string) (map[string]any, error) {
	filePath, err := resolveImagePath(req.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("input_reference not available for AIHubMix: %w", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("input_reference not available for AIHubMix: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("prompt", req.Prompt)
	_ = writer.WriteField("model", model)
	_ = writer.WriteField("size", size)
	_ = writer.WriteField("seconds", strconv.Itoa(req.Duration))

	part, err := writer.CreateFormFile("input_reference", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return p.requestRaw(ctx, http.MethodPost, "/videos", &body, writer.FormDataContentType())
}

func (p *AIHubMixProvider) GetTask(ctx context.Context, providerTaskID string) (TaskStatus, error) {
	if p.cfg.APIKey == "" {
		return TaskStatus{}, fmt.Errorf("AIHubMix API key not configured")
	}
	data, err := p.request(ctx, http.MethodGet, "/videos/"+providerTaskID, nil, nil)
	if err != nil {
		return TaskStatus{}, err
	}

	status := normalizeAIHubMixStatus(stringField(data, "status", "state"))
	videoURL := stringField(data, "video_url", "url", "output_url")
	if videoURL == "" {
		videoURL = fmt.Sprintf("%s/videos/%s/content", strings.TrimRight(p.cfg.BaseURL, "/"), providerTaskID)
	}

	return TaskStatus{
		Status:   status,
		Progress: intField(data, "progress", "percentage"),
		VideoURL: videoURL,
		Raw:      data,
	}, nil
}

func (p *AIHubMixProvider) DownloadVideo(ctx context.Context, providerTaskID, videoURL, destPath string) error {
	if p.cfg.APIKey == "" {
		return fmt.Errorf("AIHubMix API key not configured")
	}
	url := videoURL
	if url == "" {
		url = fmt.Sprintf("%s/videos/%s/content", strings.TrimRight(p.cfg.BaseURL, "/"), providerTaskID)
	}
	return downloadAtomically(ctx, p.client, url, destPath, p.authHeader(), p.cfg.DownloadTimeout)
}

func (p *AIHubMixProvider) authHeader() string {
	return "Bearer " + p.cfg.APIKey
}

func (p *AIHubMixProvider) request(ctx context.Context, method, endpoint string, jsonBody map[string]any, _ any) (map[string]any, error) {
	var reader io.Reader
	if jsonBody != nil {
		b, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	return p.requestRaw(ctx, method, endpoint, reader, "application/json")
}

func (p *AIHubMixProvider) requestRaw(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	if err := p.limiters.Wait(ctx, "aihubmix"); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.cfg.BaseURL, "/")+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.authHeader())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("AIHubMix unauthorized (401)")
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("AIHubMix rate limited (429)")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("AIHubMix server error (%d)", resp.StatusCode)
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("AIHubMix returned non-JSON response: %w", err)
	}
	return data, nil
}

func normalizeAIHubMixStatus(status string) Status {
	switch strings.ToLower(status) {
	case "completed", "succeeded", "success", "done":
		return StatusCompleted
	case "failed", "error", "canceled", "cancelled":
		return StatusFailed
	default:
		return StatusRunning
	}
}

func stringField(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func intField(data map[string]any, keys ...string) int {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case int:
				return n
			}
		}
	}
	return 0
}

func extractVideoID(data map[string]any) string {
	for _, key := range []string{"id", "video_id", "task_id"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	if nested, ok := data["data"].(map[string]any); ok {
		for _, key := range []string{"id", "video_id", "task_id"} {
			if v, ok := nested[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

func resolveImagePath(imageURL string) (string, error) {
	const uploadsPrefix = "/uploads/"
	if strings.HasPrefix(imageURL, uploadsPrefix) {
		return filepath.Join("backend", "uploads", strings.TrimPrefix(imageURL, uploadsPrefix)), nil
	}
	if _, err := os.Stat(imageURL); err == nil {
		return imageURL, nil
	}
	return "", fmt.Errorf("reference image not found: %s", imageURL)
}
