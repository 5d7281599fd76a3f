package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hylla/flexcal/internal/adapters/ical"
	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/config"
	"github.com/hylla/flexcal/internal/render"
)

func newExceptionsCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exceptions",
		Short:   "Import and inspect blackout days",
		GroupID: groupSchedule,
	}
	cmd.AddCommand(
		newExceptionsImportCommand(env),
		newExceptionsRefreshCommand(env),
		newExceptionsLookupCommand(env),
	)
	return cmd
}

func newExceptionsImportCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		Source   string
		Layer    string
		Targets  []string
		Replace  bool
		Markdown bool
	}
	cmd := &cobra.Command{
		Use:   "import <calendar-id>",
		Short: "Import blackout days from an ICS file or URL",
		Long: `Expand the events of an ICS file or http(s) feed (recurrences included) across
the calendar's span and store them as exception items. Items sitting on a
newly blocked day are reflowed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			importer := env.importer(svc)
			res, err := importer.ImportFeed(cmd.Context(), ical.Feed{
				Name:            filepath.Base(opts.Source),
				CalendarID:      args[0],
				LayerKey:        opts.Layer,
				Source:          opts.Source,
				TargetLayerKeys: opts.Targets,
				Replace:         opts.Replace,
			})
			if err != nil {
				return fmt.Errorf("import exceptions: %w", err)
			}
			env.logger.Info("exceptions imported", "calendar_id", args[0], "blackouts", res.Blackouts, "moved", res.Moved)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d blackout day(s); %d item(s) moved%s\n", res.Blackouts, res.Moved, staleNote(res))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Source, "file", "", "ICS file path or http(s) URL")
	cmd.Flags().StringVar(&opts.Layer, "layer", "", "exception layer key (default: first exception layer)")
	cmd.Flags().StringSliceVar(&opts.Targets, "target", nil, "layers the blackouts apply to (empty means all)")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "replace the layer's markers instead of merging")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newExceptionsRefreshCommand(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-import every feed listed under [[exceptions.feeds]]",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			feeds := feedsFromConfig(env.cfg.Exceptions.Feeds)
			if len(feeds) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no feeds configured")
				return nil
			}
			refresher, err := ical.NewFeedRefresher(env.importer(svc), feeds, env.logger)
			if err != nil {
				return err
			}
			if err := refresher.RefreshAll(cmd.Context()); err != nil {
				return err
			}
			for _, feed := range feeds {
				if res, ok := refresher.LastResult(feed.Name); ok {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d blackout day(s), %d moved%s\n", feed.Name, res.Blackouts, res.Moved, staleNote(res))
				}
			}
			return nil
		},
	}
}

func newExceptionsLookupCommand(env *cliEnv) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lookup <calendar-id>",
		Short: "Show blocked days globally and per layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			summary, err := svc.ExceptionLookup(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("exception lookup: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), render.Exceptions(summary))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newExportCommand(env *cliEnv) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:     "export <calendar-id>",
		Short:   "Export a calendar document as JSON",
		GroupID: groupTransfer,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			doc, err := svc.ExportDocument(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("export calendar: %w", err)
			}
			encoded, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("encode calendar json: %w", err)
			}
			return writeOutput(cmd.OutOrStdout(), outPath, append(encoded, '\n'))
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func newImportCommand(env *cliEnv) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a calendar document, replacing a calendar with the same id",
		Long: `Import a calendar document. Older documents using groupings, days and
autoShift are accepted and normalized.`,
		GroupID: groupTransfer,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				content []byte
				err     error
			)
			if inPath == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(inPath)
			}
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var doc app.CalendarDocument
			if err := json.Unmarshal(content, &doc); err != nil {
				return fmt.Errorf("decode calendar json: %w", err)
			}
			svc, err := env.service()
			if err != nil {
				return err
			}
			cal, err := svc.ImportDocument(cmd.Context(), doc)
			if err != nil {
				return fmt.Errorf("import calendar: %w", err)
			}
			env.logger.Info("calendar imported", "calendar_id", cal.ID, "items", len(cal.Items))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported calendar %s (%s) with %d items\n", cal.ID, cal.Name, len(cal.Items))
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input calendar JSON file ('-' for stdin)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newExportICSCommand(env *cliEnv) *cobra.Command {
	var (
		outPath string
		opts    ical.ExportOptions
	)
	cmd := &cobra.Command{
		Use:     "export-ics <calendar-id>",
		Short:   "Export a calendar as an iCalendar feed of all-day events",
		GroupID: groupTransfer,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			cal, err := svc.GetCalendar(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get calendar: %w", err)
			}
			body := ical.Export(cal, nowFunc(), opts)
			return writeOutput(cmd.OutOrStdout(), outPath, []byte(body))
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringSliceVar(&opts.LayerKeys, "layer", nil, "only export these layers")
	cmd.Flags().BoolVar(&opts.SkipExceptions, "skip-exceptions", false, "leave blackout markers out")
	return cmd
}

// feedsFromConfig maps [[exceptions.feeds]] entries onto importer feeds.
func feedsFromConfig(in []config.FeedConfig) []ical.Feed {
	out := make([]ical.Feed, 0, len(in))
	for i, fc := range in {
		name := strings.TrimSpace(fc.Name)
		if name == "" {
			name = fmt.Sprintf("feed-%d", i+1)
		}
		out = append(out, ical.Feed{
			Name:            name,
			CalendarID:      fc.CalendarID,
			LayerKey:        fc.LayerKey,
			Source:          fc.Source,
			Schedule:        fc.Schedule,
			TargetLayerKeys: fc.TargetLayerKeys,
			Replace:         fc.Replace,
		})
	}
	return out
}

func staleNote(res ical.ImportResult) string {
	if res.Stale {
		return " (from cache)"
	}
	return ""
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput writes content to stdout for "-" or to outPath.
func writeOutput(stdout io.Writer, outPath string, content []byte) error {
	if outPath == "" || outPath == "-" {
		if _, err := stdout.Write(content); err != nil {
			return fmt.Errorf("write to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outPath, content, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}
