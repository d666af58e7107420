package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/go-fpguard"
	"github.com/joeycumines/go-fpguard/document"
	"github.com/joeycumines/go-fpguard/report"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type runOptions struct {
	root     *rootOptions
	location string
	baseURL  string
	catalog  string
	wait     time.Duration
	timeout  time.Duration
	summary  bool
	noScreen bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := runOptions{root: root}
	cmd := &cobra.Command{
		Use:   "run [flags] script...",
		Short: "Run scripts as a page, printing each report as a JSON line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.location, "location", "about:blank", "document URL, reported for calls that can't be attributed to a script")
	f.StringVar(&opts.baseURL, "base-url", "", "URL scripts are served from, defaults to their file:// URL")
	f.StringVar(&opts.catalog, "catalog", "", "catalog file, instead of the default")
	f.DurationVar(&opts.wait, "wait", 0, "time to let timers run, after the last script")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "limit for the whole run")
	f.BoolVar(&opts.summary, "summary", false, "print a table of blocked calls per script")
	f.BoolVar(&opts.noScreen, "no-screen", false, "leave the screen geometry unmodified")
	return cmd
}

func (x *runOptions) run(ctx context.Context, stdout, stderr io.Writer, files []string) error {
	logger, err := x.root.logger(stderr)
	if err != nil {
		return err
	}

	c, err := loadCatalog(x.catalog)
	if err != nil {
		return err
	}

	scripts := make([]document.Script, 0, len(files))
	for _, file := range files {
		source, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		url, err := x.scriptURL(file)
		if err != nil {
			return err
		}
		scripts = append(scripts, document.Script{URL: url, Source: string(source)})
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	var recorder report.Recorder
	dispatcher := report.NewDispatcher(&report.DispatcherConfig{Logger: logger}, report.Sinks{
		report.NewJSONSink(stdout),
		report.NewLogSink(logger, report.DefaultLogRates),
		&recorder,
	})
	defer dispatcher.Close()

	guardOpts := []fpguard.Option{fpguard.WithCatalog(c)}
	if x.noScreen {
		guardOpts = append(guardOpts, fpguard.WithoutScreenRandomization())
	}

	doc, err := document.Open(
		document.WithChannel(dispatcher),
		document.WithLogger(logger),
		document.WithLocation(x.location),
		document.WithGuardOptions(guardOpts...),
	)
	if err != nil {
		return err
	}
	if err := doc.InstallError(); err != nil {
		logger.Warning().
			Err(err).
			Log(`protection partially installed`)
	}

	// like a page, a failing script doesn't prevent the rest from running
	var errs []error
	for _, script := range scripts {
		if _, err := doc.Exec(ctx, script); err != nil {
			errs = append(errs, fmt.Errorf(`%s: %w`, script.URL, err))
			if ctx.Err() != nil {
				break
			}
		}
	}

	if x.wait > 0 && ctx.Err() == nil {
		timer := time.NewTimer(x.wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	if err := doc.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if x.summary {
		writeSummary(stdout, recorder.Summary(), dispatcher.Dropped())
	}

	return errors.Join(errs...)
}

func (x *runOptions) scriptURL(file string) (string, error) {
	if x.baseURL != "" {
		return strings.TrimSuffix(x.baseURL, "/") + "/" + filepath.ToSlash(filepath.Base(file)), nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func writeSummary(w io.Writer, counts []report.Count, dropped uint64) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Type", "Script", "Blocked"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	var total int
	for _, c := range counts {
		table.Append([]string{c.Type, c.ScriptURL, strconv.Itoa(c.Count)})
		total += c.Count
	}

	footer := fmt.Sprintf("Total Scripts %d", countScripts(counts))
	if dropped != 0 {
		footer += fmt.Sprintf(" (%d reports dropped)", dropped)
	}
	table.SetFooter([]string{"", footer, strconv.Itoa(total)})

	table.Render()
}

func countScripts(counts []report.Count) int {
	scripts := make(map[string]struct{}, len(counts))
	for _, c := range counts {
		scripts[c.ScriptURL] = struct{}{}
	}
	return len(scripts)
}
