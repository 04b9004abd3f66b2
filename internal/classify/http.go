package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/zephyrtronium/scribble/internal/logging"
)

// HTTP classifies symbols with a model server. Each symbol is posted as JSON
// with the normalized raster as base64 PNG:
//
//	{"image": "iVBOR...", "size": 128, "threshold": 0.4}
//
// and the server answers with an Answer:
//
//	{"label": "7", "confidence": 0.93}
type HTTP struct {
	URL      string
	Client   *http.Client
	Size     int
	Alphabet Alphabet
	// Limiter, if not nil, bounds the rate of requests.
	Limiter *rate.Limiter
	Log     *slog.Logger
}

// NewHTTP creates an HTTP classifier. If rps is positive, requests are
// limited to rps per second with the given burst.
func NewHTTP(url string, size int, timeout time.Duration, rps float64, burst int, alpha Alphabet, log *slog.Logger) *HTTP {
	h := &HTTP{
		URL:      url,
		Client:   &http.Client{Timeout: timeout},
		Size:     size,
		Alphabet: alpha,
		Log:      logging.Or(log),
	}
	if rps > 0 {
		h.Limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
	return h
}

type httpRequest struct {
	Image     string  `json:"image"`
	Size      int     `json:"size"`
	Threshold float64 `json:"threshold"`
}

// Classify implements predict.Classifier.
func (h *HTTP) Classify(ctx context.Context, raster image.Image, threshold float64) (string, error) {
	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("classify: %w", err)
		}
	}
	b, err := encode(raster, h.Size)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(httpRequest{
		Image:     base64.StdEncoding.EncodeToString(b),
		Size:      h.Size,
		Threshold: threshold,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("classify: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classify: %s: %s", resp.Status, bytes.TrimSpace(data))
	}
	a, err := parseAnswer(data)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	lbl := a.Resolve(threshold, h.Alphabet)
	h.Log.Debug("classified symbol", "label", a.Label, "confidence", a.Confidence, "result", lbl)
	return lbl, nil
}
