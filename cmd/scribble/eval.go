package main

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/scribble"
)

type evalFlags struct {
	in       string
	verb     string
	given    []string
	echo     bool
	prec     uint
	decimals int
}

func newEvalCmd(a *app) *cobra.Command {
	var f evalFlags
	cmd := &cobra.Command{
		Use:   "eval [ROW...]",
		Short: "Evaluate rows of labels",
		Long: `Evaluate rows of symbol labels as a model would read them, e.g.

	scribble eval "2 + 3 =" "x = 4" "x times 2"

Each argument is one row with labels separated by spaces. With no arguments,
each line of the input is a row. Rows are evaluated in order in one
environment, so later rows see variables assigned by earlier ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.eval(cmd, args, &f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.in, "in", "", "input file (default stdin if no rows are given)")
	fl.StringVar(&f.verb, "fmt", "", "result formatting verb, e.g. %g (default decimal with --decimals places)")
	fl.StringArrayVar(&f.given, "given", nil, "name=value variable definition (any number of times)")
	fl.BoolVar(&f.echo, "echo", false, "print parse trees")
	fl.UintVarP(&f.prec, "prec", "p", 0, "precision of calculations in bits (default from config)")
	fl.IntVar(&f.decimals, "decimals", -1, "decimal places for non-integral results (default from config)")
	return cmd
}

func (a *app) eval(cmd *cobra.Command, args []string, f *evalFlags) error {
	prec := f.prec
	if prec == 0 {
		prec = a.cfg.Eval.Precision
	}
	decimals := f.decimals
	if decimals < 0 {
		decimals = a.cfg.Eval.Decimals
	}
	opts := a.cfg.Eval.ParseOptions()
	env, err := givens(f.given, prec, opts)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, arg := range args {
		rows = append(rows, strings.Fields(arg))
	}
	if len(args) == 0 || f.in != "" {
		in, err := input(cmd, f.in)
		if err != nil {
			return err
		}
		more, err := lines(in)
		if c, ok := in.(io.Closer); ok && in != cmd.InOrStdin() {
			c.Close()
		}
		if err != nil {
			return err
		}
		rows = append(more, rows...)
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, row := range rows {
		e, err := scribble.ParseLabels(scribble.Query(row), opts...)
		if err != nil {
			fmt.Fprintf(out, "%s error: %v\n", scribble.KindOf(err), err)
			failed++
			continue
		}
		if f.echo {
			fmt.Fprintf(out, "%v : ", e)
		}
		v, err := e.Eval(env)
		if err != nil {
			fmt.Fprintf(out, "%s error: %v\n", scribble.KindOf(err), err)
			failed++
			continue
		}
		if v == nil {
			for i, name := range e.Targets() {
				if i > 0 {
					fmt.Fprint(out, ", ")
				}
				fmt.Fprintf(out, "%s = %s", name, show(env.Lookup(name), f.verb, decimals))
			}
			fmt.Fprintln(out)
			continue
		}
		fmt.Fprintln(out, show(v, f.verb, decimals))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rows failed", failed, len(rows))
	}
	return nil
}

// show formats a value with a fmt verb, or with scribble.Format if verb is
// empty.
func show(v *big.Float, verb string, decimals int) string {
	if verb == "" {
		return scribble.Format(v, decimals)
	}
	return fmt.Sprintf(verb, v)
}

// givens builds an environment from name=value definitions. Values are rows
// of labels themselves, so "--given r=1 forward_slash 4" sets R to 0.25.
func givens(defs []string, prec uint, opts []scribble.ParseOption) (*scribble.Env, error) {
	env := scribble.NewEnv(scribble.Prec(prec))
	for _, d := range defs {
		name, val, ok := strings.Cut(d, "=")
		if !ok {
			return nil, fmt.Errorf(`variable definitions must be "name=value", not %q`, d)
		}
		name = strings.TrimSpace(name)
		v, err := scribble.Evaluate(strings.Fields(val), env, opts...)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", name, err)
		}
		if v == nil {
			return nil, fmt.Errorf("setting %s: value is an assignment", name)
		}
		env.Set(name, v)
	}
	return env, nil
}

func input(cmd *cobra.Command, name string) (io.Reader, error) {
	if name == "" || name == "-" {
		return cmd.InOrStdin(), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// lines splits input into rows, skipping blank lines.
func lines(r io.Reader) ([][]string, error) {
	var rows [][]string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if f := strings.Fields(sc.Text()); len(f) > 0 {
			rows = append(rows, f)
		}
	}
	return rows, sc.Err()
}
