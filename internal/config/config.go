// Package config loads the configuration of the scribble commands.
//
// Configuration starts from Default, is overlaid by an optional YAML file,
// then by SCRIBBLE_* environment variables, and is finally validated.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/glyph"
	"github.com/zephyrtronium/scribble/predict"
)

// Config is the complete configuration.
type Config struct {
	Server     Server     `yaml:"server"`
	Log        Log        `yaml:"log"`
	Classifier Classifier `yaml:"classifier"`
	Grouping   Grouping   `yaml:"grouping"`
	Eval       Eval       `yaml:"eval"`
	Session    Session    `yaml:"session"`
	Vision     Vision     `yaml:"vision"`
	Trace      Trace      `yaml:"trace"`
}

type Server struct {
	Addr string `yaml:"addr" validate:"required"`
	// Workers is the number of submissions processed at once.
	Workers int `yaml:"workers" validate:"min=1"`
	// MaxImageBytes bounds the size of a decoded submission.
	MaxImageBytes int `yaml:"max_image_bytes" validate:"min=1"`
	// Queue is the number of actions one connection may have pending.
	Queue int `yaml:"queue" validate:"min=1"`
}

type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

type Classifier struct {
	Kind string `yaml:"kind" validate:"oneof=http gemini"`
	// URL is the endpoint of an HTTP model server.
	URL    string `yaml:"url" validate:"required_if=Kind http"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key" validate:"required_if=Kind gemini"`
	// Threshold is the confidence threshold for symbols.
	Threshold float64 `yaml:"threshold" validate:"gt=0,lte=1"`
	// InputSize is the side of the square raster sent to the model.
	InputSize int `yaml:"input_size" validate:"min=8,max=1024"`
	// RPS limits calls to the model. Zero is unlimited.
	RPS     float64       `yaml:"rps" validate:"gte=0"`
	Burst   int           `yaml:"burst" validate:"min=1"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// Alphabet is the set of labels the model may produce.
	Alphabet []string `yaml:"alphabet" validate:"dive,required"`
}

type Grouping struct {
	MinArea           float64 `yaml:"min_area" validate:"gte=0"`
	Tolerance         int     `yaml:"tolerance" validate:"gte=0"`
	LineAspect        float64 `yaml:"line_aspect" validate:"gt=0"`
	LineHeight        int     `yaml:"line_height" validate:"gt=0"`
	NarrowWidth       int     `yaml:"narrow_width" validate:"gte=0"`
	NarrowAspect      float64 `yaml:"narrow_aspect" validate:"gte=0"`
	Pad               int     `yaml:"pad" validate:"gte=0"`
	MarginLeft        int     `yaml:"margin_left" validate:"gte=0"`
	MarginRight       int     `yaml:"margin_right" validate:"gte=0"`
	EqualsDX          int     `yaml:"equals_dx" validate:"gt=0"`
	EqualsDY          int     `yaml:"equals_dy" validate:"gt=0"`
	RowThreshold      int     `yaml:"row_threshold" validate:"gte=0"`
	ChildRowThreshold int     `yaml:"child_row_threshold" validate:"gte=0"`
}

type Eval struct {
	Precision  uint `yaml:"precision" validate:"min=8,max=4096"`
	Decimals   int  `yaml:"decimals" validate:"min=0,max=30"`
	ReportZero bool `yaml:"report_zero"`
	// Functions are the optional functions to enable. The square root is
	// always enabled.
	Functions []string `yaml:"functions" validate:"dive,oneof=sqrt exp ln log"`
}

type Session struct {
	Store string `yaml:"store" validate:"oneof=memory badger postgres sqlite"`
	// Path is the directory of a badger store or the file of a sqlite store.
	Path string `yaml:"path"`
	// DSN is the connection string of a postgres store.
	DSN string `yaml:"dsn" validate:"required_if=Store postgres"`
}

type Vision struct {
	// Threshold is the global binarization threshold, used when Block is 0.
	Threshold int `yaml:"threshold" validate:"min=0,max=255"`
	// Block and C configure adaptive thresholding: a pixel is ink if it is
	// darker than the mean of the surrounding Block×Block pixels minus C.
	Block int `yaml:"block" validate:"min=0"`
	C     int `yaml:"c"`
	// Pad is the white margin added to the right and bottom of submissions.
	Pad int `yaml:"pad" validate:"min=0"`
}

type Trace struct {
	Stdout bool `yaml:"stdout"`
}

// Default returns the default configuration.
func Default() *Config {
	g := glyph.DefaultGrouper()
	return &Config{
		Server: Server{
			Addr:          ":8080",
			Workers:       4,
			MaxImageBytes: 8 << 20,
			Queue:         16,
		},
		Log: Log{Level: "info"},
		Classifier: Classifier{
			Kind:      "http",
			URL:       "http://localhost:8000/classify",
			Model:     "gemini-2.5-flash",
			Threshold: 0.4,
			InputSize: 128,
			RPS:       0,
			Burst:     1,
			Timeout:   10 * time.Second,
			Alphabet:  DefaultAlphabet(),
		},
		Grouping: Grouping{
			MinArea:           g.MinArea,
			Tolerance:         g.Tolerance,
			LineAspect:        g.LineAspect,
			LineHeight:        g.LineHeight,
			NarrowWidth:       g.NarrowWidth,
			NarrowAspect:      g.NarrowAspect,
			Pad:               g.Pad,
			MarginLeft:        g.MarginLeft,
			MarginRight:       g.MarginRight,
			EqualsDX:          g.EqualsDX,
			EqualsDY:          g.EqualsDY,
			RowThreshold:      g.RowThreshold,
			ChildRowThreshold: g.ChildRowThreshold,
		},
		Eval: Eval{
			Precision: 64,
			Decimals:  2,
			Functions: scribble.DefaultFuncs(),
		},
		Session: Session{Store: "memory"},
		Vision: Vision{
			Threshold: 128,
			Block:     11,
			C:         2,
			Pad:       50,
		},
	}
}

// DefaultAlphabet returns the labels of the handwriting model.
func DefaultAlphabet() []string {
	return []string{
		"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
		"+", "-", "=", "*", "div", "times", "forward_slash", ",",
		"(", ")", "sqrt",
		"x", "y", "z", "a", "b", "c",
	}
}

// Load reads the configuration file at path, if path is not empty, and
// applies overrides from the environment.
func Load(path string) (*Config, error) {
	return LoadEnv(path, os.Getenv)
}

// LoadEnv is like Load but reads the environment through getenv.
func LoadEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := cfg.decode(b); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := cfg.override(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) decode(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// override applies environment variables.
func (cfg *Config) override(getenv func(string) string) error {
	str := func(k string, p *string) {
		if v := getenv(k); v != "" {
			*p = v
		}
	}
	str("SCRIBBLE_ADDR", &cfg.Server.Addr)
	str("SCRIBBLE_LOG_LEVEL", &cfg.Log.Level)
	str("SCRIBBLE_CLASSIFIER", &cfg.Classifier.Kind)
	str("SCRIBBLE_CLASSIFIER_URL", &cfg.Classifier.URL)
	str("SCRIBBLE_GEMINI_MODEL", &cfg.Classifier.Model)
	str("GEMINI_API_KEY", &cfg.Classifier.APIKey)
	str("SCRIBBLE_GEMINI_API_KEY", &cfg.Classifier.APIKey)
	str("SCRIBBLE_SESSION_STORE", &cfg.Session.Store)
	str("SCRIBBLE_SESSION_PATH", &cfg.Session.Path)
	str("SCRIBBLE_SESSION_DSN", &cfg.Session.DSN)
	if v := getenv("SCRIBBLE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCRIBBLE_WORKERS: %w", err)
		}
		cfg.Server.Workers = n
	}
	if v := getenv("SCRIBBLE_LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCRIBBLE_LOG_JSON: %w", err)
		}
		cfg.Log.JSON = b
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch cfg.Session.Store {
	case "badger", "sqlite":
		if cfg.Session.Path == "" {
			return fmt.Errorf("invalid config: session store %s needs a path", cfg.Session.Store)
		}
	}
	return nil
}

// Grouper returns the grouping parameters.
func (g Grouping) Grouper() glyph.Grouper {
	return glyph.Grouper{
		MinArea:           g.MinArea,
		Tolerance:         g.Tolerance,
		LineAspect:        g.LineAspect,
		LineHeight:        g.LineHeight,
		NarrowWidth:       g.NarrowWidth,
		NarrowAspect:      g.NarrowAspect,
		Pad:               g.Pad,
		MarginLeft:        g.MarginLeft,
		MarginRight:       g.MarginRight,
		EqualsDX:          g.EqualsDX,
		EqualsDY:          g.EqualsDY,
		RowThreshold:      g.RowThreshold,
		ChildRowThreshold: g.ChildRowThreshold,
	}
}

// ParseOptions returns the parse options enabling exactly the configured
// functions.
func (e Eval) ParseOptions() []scribble.ParseOption {
	fns := make(map[string]scribble.Func)
	for _, name := range scribble.DefaultFuncs() {
		fns[name] = nil
	}
	fns["sqrt"] = scribble.DefaultFunc("sqrt")
	for _, name := range e.Functions {
		fns[name] = scribble.DefaultFunc(name)
	}
	return []scribble.ParseOption{scribble.ParsingPreset(scribble.ParseFuncs(fns))}
}

// Policy returns the prediction policy.
func (cfg *Config) Policy() predict.Policy {
	p := predict.DefaultPolicy()
	p.Threshold = cfg.Classifier.Threshold
	p.Decimals = cfg.Eval.Decimals
	p.ReportZero = cfg.Eval.ReportZero
	return p
}
