package classify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/zephyrtronium/scribble/internal/logging"
)

// Gemini classifies symbols with a Gemini vision model.
type Gemini struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	size     int
	alphabet Alphabet
	limiter  *rate.Limiter
	log      *slog.Logger
}

// NewGemini connects to Gemini with an API key.
func NewGemini(ctx context.Context, apiKey, model string, size int, rps float64, burst int, alpha Alphabet, log *slog.Logger) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	m := cl.GenerativeModel(strings.TrimSpace(model))
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(instructions(alpha))}}
	g := &Gemini{
		client:   cl,
		model:    m,
		size:     size,
		alphabet: alpha,
		log:      logging.Or(log),
	}
	if rps > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
	return g, nil
}

// instructions is the system instruction for a given alphabet.
func instructions(alpha Alphabet) string {
	var b strings.Builder
	b.WriteString("You read single handwritten symbols from math worksheets. ")
	b.WriteString("Each image holds exactly one symbol, black on white. ")
	b.WriteString(`Answer only with JSON of the form {"label": "<label>", "confidence": <0 to 1>}. `)
	if len(alpha) > 0 {
		b.WriteString("The label must be one of: ")
		b.WriteString(strings.Join(alpha, " "))
		b.WriteString(". ")
	}
	b.WriteString(`A radical sign is "sqrt". A cross used for multiplication is "times". `)
	b.WriteString(`If the image is not a symbol you can read, answer with the label "unknown".`)
	return b.String()
}

// Classify implements predict.Classifier.
func (g *Gemini) Classify(ctx context.Context, raster image.Image, threshold float64) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("gemini: %w", err)
		}
	}
	b, err := encode(raster, g.size)
	if err != nil {
		return "", err
	}
	parts := []genai.Part{
		genai.Text("Read this symbol."),
		&genai.Blob{MIMEType: "image/png", Data: b},
	}
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := g.model.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			g.log.Warn("gemini request failed", "attempt", attempt, "err", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := stripFences(firstText(resp))
		if txt == "" {
			return "", errors.New("gemini: empty response")
		}
		a, err := parseAnswer([]byte(txt))
		if err != nil {
			return "", fmt.Errorf("gemini: %w", err)
		}
		return a.Resolve(threshold, g.alphabet), nil
	}
	return "", fmt.Errorf("gemini: %w", lastErr)
}

// Close releases the client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// stripFences removes a markdown code fence around a response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func ptrFloat32(v float32) *float32 { return &v }
