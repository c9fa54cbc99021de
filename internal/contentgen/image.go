package contentgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/petrijr/stepwise/pkg/api"
)

// DefaultImageTimeout bounds a single image request.
const DefaultImageTimeout = 60 * time.Second

// ImageClient posts prompts to an image endpoint that answers
// {"imageUrl": "..."}.
type ImageClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewImageClient creates a client for endpoint. A nil hc uses a client
// with DefaultImageTimeout.
func NewImageClient(endpoint, apiKey string, hc *http.Client) *ImageClient {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultImageTimeout}
	}
	return &ImageClient{endpoint: endpoint, apiKey: apiKey, http: hc}
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

// Generate renders prompt and returns the image URL.
func (c *ImageClient) Generate(ctx context.Context, prompt string) (api.GeneratedImage, error) {
	body, err := json.Marshal(imageRequest{Prompt: prompt})
	if err != nil {
		return api.GeneratedImage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return api.GeneratedImage{}, fmt.Errorf("image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return api.GeneratedImage{}, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return api.GeneratedImage{}, fmt.Errorf("image endpoint: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var out api.GeneratedImage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.GeneratedImage{}, fmt.Errorf("decode image response: %w", err)
	}
	return out, nil
}
