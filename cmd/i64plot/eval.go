package main

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/plot"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Sweep a pair of expressions and print t x y rows",
		Args:  cobra.NoArgs,
		RunE:  runEval,
	}
	cmd.Flags().String("x", plot.DefaultX, "X expression")
	cmd.Flags().String("y", plot.DefaultY, "Y expression")
	cmd.Flags().Int64("from", runtime.DefaultFrom, "first value of t")
	cmd.Flags().Int64("to", runtime.DefaultTo, "last value of t")
	cmd.Flags().Int("workers", 1, "sweep workers")
	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	xText, _ := flags.GetString("x")
	yText, _ := flags.GetString("y")
	workers, _ := flags.GetInt("workers")

	var r runtime.Range
	r.From, _ = flags.GetInt64("from")
	r.To, _ = flags.GetInt64("to")

	p := plot.New(plot.WithWorkers(workers))
	p.SetX(xText)
	p.SetY(yText)

	res, err := p.Evaluate(cmd.Context(), r)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(cmd.OutOrStdout())
	for i := 0; i < res.Len(); i++ {
		fmt.Fprintf(w, "%d %d %d\n", res.Parameter(i), res.X.At(i), res.Y.At(i))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if res.Failed() {
		f := res.Faults[0]
		return fmt.Errorf("evaluation failed at parameter=%d (%s)", f.Parameter, f.Kind)
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check EXPR...",
		Short: "Validate expressions and print their canonical text",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	var errs []error
	for _, text := range args {
		e, err := expr.Compile(text)
		if err != nil {
			errs = append(errs, fmt.Errorf("%q: %w", text, err))
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), e.Text())
	}
	return errors.Join(errs...)
}
