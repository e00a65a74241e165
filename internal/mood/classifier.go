// Package mood turns facial-expression inference into live and committed mood state.
package mood

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/bryan-buckman/mindful/internal/model"
)

// ErrModelUnavailable means the expression model backend cannot be reached.
// The detection loop stops when it sees this error.
var ErrModelUnavailable = errors.New("expression model unavailable")

// Expressions maps each emotion label to its probability in [0,1].
// An empty map means no face was detected.
type Expressions map[model.Emotion]float64

// Frame is one captured video frame.
type Frame struct {
	Data        []byte
	ContentType string // e.g. image/jpeg
	Width       int
	Height      int
	Seq         uint64
	Timestamp   time.Time
}

// Classifier runs expression inference on a frame.
type Classifier interface {
	Classify(ctx context.Context, frame Frame) (Expressions, error)
}

// Dominant selects the most probable label and its confidence as a 0-100
// integer. Ties go to the label listed first in model.Emotions; labels
// outside the vocabulary are ignored. Empty input yields ("", 0).
func Dominant(exprs Expressions) (model.Emotion, int) {
	var best model.Emotion
	bestP := math.Inf(-1)
	for _, e := range model.Emotions {
		p, ok := exprs[e]
		if !ok {
			continue
		}
		if p > bestP {
			best, bestP = e, p
		}
	}
	if best == "" {
		return "", 0
	}
	return best, int(math.Round(bestP * 100))
}

// HTTPClassifier posts frames to an external inference service that answers
// with {"faces":[{"expressions":{"happy":0.9,...}}]}.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier creates a classifier for the service at url.
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClassifier{url: url, client: &http.Client{Timeout: timeout}}
}

type classifyResponse struct {
	Faces []struct {
		Expressions map[string]float64 `json:"expressions"`
	} `json:"faces"`
}

// Classify sends the frame and returns the expressions of the first face.
func (c *HTTPClassifier) Classify(ctx context.Context, frame Frame) (Expressions, error) {
	if c.url == "" {
		return nil, fmt.Errorf("%w: no classifier url configured", ErrModelUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	contentType := frame.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: classifier returned %s", ErrModelUnavailable, resp.Status)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classify: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode classify response: %w", err)
	}
	exprs := Expressions{}
	if len(out.Faces) == 0 {
		return exprs, nil
	}
	for label, p := range out.Faces[0].Expressions {
		if e := model.Emotion(label); e.Valid() {
			exprs[e] = p
		}
	}
	return exprs, nil
}
