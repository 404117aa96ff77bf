package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPScorer delegates scoring to an external model server. The server
// receives POST {"text": "..."} and must answer {"score": <0..1>}.
type HTTPScorer struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPScorer creates an HTTPScorer. A zero timeout defaults to 5s.
func NewHTTPScorer(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPScorer {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPScorer{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Score implements Scorer.
func (s *HTTPScorer) Score(ctx context.Context, text string) (float64, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return 0, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("read score response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("model server error %d: %s", resp.StatusCode, string(raw))
	}

	var payload struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, fmt.Errorf("decode score response: %w", err)
	}
	if payload.Score == nil {
		return 0, fmt.Errorf("model server response has no score")
	}
	score := *payload.Score
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("%w: %v", ErrScoreRange, score)
	}

	s.logger.Debug("remote score",
		zap.Float64("score", score),
		zap.Duration("latency", time.Since(start)),
	)
	return score, nil
}
