package nsfw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Detector scores content for NSFW likelihood in [0, 1].
type Detector interface {
	Score(ctx context.Context, data []byte, mime string) (float64, error)
}

// HTTPDetector calls a sidecar classifier over HTTP. The sidecar takes
// the raw bytes as the request body and answers {"score": <float>}.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDetector constructs a detector for the given sidecar endpoint.
func NewHTTPDetector(endpoint string) *HTTPDetector {
	return &HTTPDetector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *HTTPDetector) Score(ctx context.Context, data []byte, mime string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", mime)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var body struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode classifier response: %w", err)
	}
	return body.Score, nil
}
