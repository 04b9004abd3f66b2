// Command scribble reads and evaluates handwritten arithmetic.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/scribble/internal/classify"
	"github.com/zephyrtronium/scribble/internal/config"
	"github.com/zephyrtronium/scribble/internal/logging"
	"github.com/zephyrtronium/scribble/predict"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by subcommands.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "scribble",
		Short: "Read and evaluate handwritten arithmetic",
		Long: `scribble finds the symbols of handwritten arithmetic in images, reads them
with an image model, and evaluates each row as an expression. Variables assigned
in one row are available to later rows and later submissions in the same session.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("SCRIBBLE_CONFIG"), "configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, or error")
	root.AddCommand(
		newServeCmd(a),
		newEvalCmd(a),
		newSolveCmd(a),
		newReplayCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	lvl, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:   lvl,
		JSON:    cfg.Log.JSON,
		Service: "scribble",
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.log)
	return nil
}

// classifier creates the configured classifier. The returned function
// releases it.
func (a *app) classifier(ctx context.Context) (predict.Classifier, func() error, error) {
	c := a.cfg.Classifier
	alpha := classify.Alphabet(c.Alphabet)
	switch c.Kind {
	case "http":
		h := classify.NewHTTP(c.URL, c.InputSize, c.Timeout, c.RPS, c.Burst, alpha, a.log)
		return h, func() error { return nil }, nil
	case "gemini":
		g, err := classify.NewGemini(ctx, c.APIKey, c.Model, c.InputSize, c.RPS, c.Burst, alpha, a.log)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown classifier %q", c.Kind)
	}
}
