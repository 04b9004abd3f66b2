package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/scribble/internal/scene"
	"github.com/zephyrtronium/scribble/predict"
)

func newReplayCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "replay FILE...",
		Short: "Replay scene files and check their expectations",
		Long: `Replay scene files through grouping and evaluation, reading each glyph by the
label the scene gives it, and check the outcome against the scene's expect lines.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			g := a.cfg.Grouping.Grouper()
			p := predict.New(nil, a.cfg.Eval.ParseOptions()...)
			p.Policy = a.cfg.Policy()
			total, failed := 0, 0
			for _, file := range args {
				scenes, err := scene.Load(file)
				if err != nil {
					return err
				}
				for _, s := range scenes {
					total++
					rep, err := s.Replay(ctx, &g, p, a.cfg.Eval.Precision)
					if err == nil {
						err = s.Check(rep, p.Policy.Decimals)
					}
					if verbose && rep != nil {
						for _, e := range rep.Events {
							fmt.Fprintf(out, "\t%v\n", e)
						}
					}
					if err != nil {
						failed++
						fmt.Fprintf(out, "FAIL %s: %v\n", s.Name, err)
						continue
					}
					fmt.Fprintf(out, "ok   %s\n", s.Name)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenes failed", failed, total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every event")
	return cmd
}
