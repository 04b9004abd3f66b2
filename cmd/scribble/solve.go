package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/scribble/internal/solve"
	"github.com/zephyrtronium/scribble/predict"
)

func newSolveCmd(a *app) *cobra.Command {
	var (
		given  []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "solve FILE",
		Short: "Read and evaluate an image with the configured classifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := givens(given, a.cfg.Eval.Precision, a.cfg.Eval.ParseOptions())
			if err != nil {
				return err
			}
			c, release, err := a.classifier(ctx)
			if err != nil {
				return err
			}
			defer release()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			s := solve.New(a.cfg, c, a.log)
			s.MaxPixels = 0
			var aborted bool
			for e := range s.Decode(ctx, f, env) {
				if err := printEvent(cmd.OutOrStdout(), e, asJSON); err != nil {
					return err
				}
				aborted = aborted || e.Aborted
			}
			if aborted {
				return fmt.Errorf("could not read %s", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&given, "given", nil, "name=value variable definition (any number of times)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON lines")
	return cmd
}

// jsonEvent is the JSON form of an event.
type jsonEvent struct {
	Kind     string             `json:"kind"`
	Row      string             `json:"row,omitempty"`
	Message  string             `json:"message"`
	Value    string             `json:"value,omitempty"`
	Position *predict.Placement `json:"position,omitempty"`
	Aborted  bool               `json:"aborted,omitempty"`
}

func printEvent(w io.Writer, e predict.Event, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, e)
		return err
	}
	j := jsonEvent{
		Kind:     e.Kind.String(),
		Message:  e.Message,
		Value:    e.Text,
		Position: e.Position,
		Aborted:  e.Aborted,
	}
	if e.Row != nil {
		j.Row = e.Row.String()
	}
	return json.NewEncoder(w).Encode(j)
}
