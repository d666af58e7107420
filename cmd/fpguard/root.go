package main

import (
	"fmt"
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel string
}

func newRootCommand() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:          "fpguard",
		Short:        "Run scripts with fingerprinting APIs blocked",
		Long:         "Runs page scripts in a JavaScript runtime where canvas, WebGL, audio, and WebRTC fingerprinting APIs are trapped, reporting each blocked call with the script that made it.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", logiface.LevelWarning.String(), "log level (emerg, alert, crit, err, warning, notice, info, debug, trace, disabled)")
	cmd.AddCommand(
		newRunCommand(&opts),
		newCatalogCommand(),
	)
	return cmd
}

// logger writes JSON logs to w.
func (x *rootOptions) logger(w io.Writer) (*logiface.Logger[logiface.Event], error) {
	level, err := parseLevel(x.logLevel)
	if err != nil {
		return nil, err
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger(), nil
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("invalid log level: %q", s)
}
