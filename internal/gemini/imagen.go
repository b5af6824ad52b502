package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studynerd/internal/logging"
	"studynerd/internal/tutor"
)

// ImagenConfig holds image client settings.
type ImagenConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultImagenConfig returns sensible defaults for the image client.
func DefaultImagenConfig(apiKey string) ImagenConfig {
	return ImagenConfig{
		APIKey:  apiKey,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "imagen-3.0-generate-002",
		Timeout: 90 * time.Second,
	}
}

// ImagenClient implements tutor.ImageGenerator against the Imagen predict
// endpoint.
type ImagenClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewImagenClient creates a new image-generation client.
func NewImagenClient(cfg ImagenConfig) *ImagenClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "imagen-3.0-generate-002"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &ImagenClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Wire types for the predict endpoint.

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount     int    `json:"sampleCount"`
	SampleImageSize string `json:"sampleImageSize,omitempty"`
}

type imagenResponse struct {
	Predictions []imagenPrediction `json:"predictions"`
	Error       *imagenError       `json:"error,omitempty"`
}

type imagenPrediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

type imagenError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GenerateImage requests one image for the prompt at the given resolution
// tier and returns it as a data URI. Failures are returned as *TransportError
// so callers can detect authorization denials.
func (c *ImagenClient) GenerateImage(ctx context.Context, prompt string, tier tutor.ImageTier) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[Imagen] GenerateImage: model=%s tier=%s prompt_len=%d", c.model, tier, len(prompt))

	if c.apiKey == "" {
		return "", &TransportError{Message: "API key not configured"}
	}

	reqBody := imagenRequest{
		Instances: []imagenInstance{{Prompt: prompt}},
		Parameters: imagenParameters{
			SampleCount:     1,
			SampleImageSize: string(tier),
		},
	}

	url := fmt.Sprintf("%s/models/%s:predict?key=%s", c.baseURL, c.model, c.apiKey)

	// Retry loop for rate limits
	maxRetries := 2
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", &TransportError{Message: fmt.Sprintf("failed to marshal request: %v", err), Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", &TransportError{Message: fmt.Sprintf("failed to create request: %v", err), Err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			logging.APIError("[Imagen] GenerateImage: status %d: %s", resp.StatusCode, string(body))
			return "", &TransportError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}

		ref, err := parseImagenResponse(body)
		if err != nil {
			return "", err
		}

		logging.API("[Imagen] GenerateImage completed in %v", time.Since(startTime))
		return ref, nil
	}

	logging.APIError("[Imagen] GenerateImage: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", &TransportError{Message: fmt.Sprintf("max retries exceeded: %v", lastErr), Err: lastErr}
}

// parseImagenResponse decodes a predict response into a data URI.
func parseImagenResponse(body []byte) (string, error) {
	var parsed imagenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &TransportError{Message: fmt.Sprintf("failed to parse response: %v", err), Err: err}
	}
	if parsed.Error != nil {
		return "", &TransportError{Code: parsed.Error.Code, Message: parsed.Error.Status + ": " + parsed.Error.Message}
	}
	if len(parsed.Predictions) == 0 || parsed.Predictions[0].BytesBase64Encoded == "" {
		return "", &TransportError{Message: "no image returned"}
	}

	p := parsed.Predictions[0]
	mime := p.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, p.BytesBase64Encoded), nil
}
