package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/preset"
	"github.com/hylla/flexcal/internal/render"
	"github.com/hylla/flexcal/internal/schedule"
)

func newCalendarCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calendar",
		Aliases: []string{"cal"},
		Short:   "Manage calendars",
		GroupID: groupCalendar,
	}
	cmd.AddCommand(
		newCalendarListCommand(env),
		newCalendarShowCommand(env),
		newCalendarCreateCommand(env),
		newCalendarUpdateCommand(env),
		newCalendarDeleteCommand(env),
	)
	return cmd
}

func newCalendarListCommand(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List calendars, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			rows, err := svc.ListCalendars(cmd.Context())
			if err != nil {
				return fmt.Errorf("list calendars: %w", err)
			}
			if len(rows) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No calendars. Create one with `flexcal calendar create` or `flexcal seed`.")
				return nil
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), render.CalendarList(rows))
			return nil
		},
	}
}

func newCalendarShowCommand(env *cliEnv) *cobra.Command {
	var filter render.ItemFilter
	cmd := &cobra.Command{
		Use:   "show <calendar-id>",
		Short: "Show a calendar's layers and scheduled items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			if filter.From != "" {
				if _, err := schedule.ParseDateKey(filter.From); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			cal, err := svc.GetCalendar(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get calendar: %w", err)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), render.Calendar(cal, filter))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.LayerKey, "layer", "", "only show items of this layer")
	cmd.Flags().StringVar(&filter.From, "from", "", "only show items on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum items to show (0 for all)")
	return cmd
}

func newCalendarCreateCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		Name              string
		Preset            string
		Start             string
		TotalDays         int
		IncludeWeekends   bool
		IncludeExceptions bool
		Layers            []string
		ExceptionLayers   []string
		Independent       []string
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a calendar from layers or a preset",
		Long: `Create a calendar and generate one item per valid day for every standard layer.

Examples:
  flexcal calendar create --name "Fall Term" --start 2025-08-04 \
    --layer reference=Reference --layer student-a="Student A" \
    --exception-layer holidays=Holidays

  flexcal calendar create --preset semester --start 2025-08-25`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := parseOptionalDate("--start", opts.Start)
			if err != nil {
				return err
			}

			var in app.CreateCalendarInput
			switch {
			case opts.Preset != "":
				if len(opts.Layers) > 0 || len(opts.ExceptionLayers) > 0 {
					return errors.New("--preset cannot be combined with --layer or --exception-layer")
				}
				p, err := preset.Load(opts.Preset)
				if err != nil {
					return err
				}
				in = p.CreateInput(opts.Name, start)
			default:
				if strings.TrimSpace(opts.Name) == "" {
					return errors.New("--name is required without --preset")
				}
				layers, err := layerInputs(opts.Layers, opts.ExceptionLayers, opts.Independent)
				if err != nil {
					return err
				}
				in = app.CreateCalendarInput{Name: opts.Name, StartDate: start, Layers: layers}
			}
			if cmd.Flags().Changed("total-days") {
				in.TotalDays = opts.TotalDays
			}
			if cmd.Flags().Changed("weekends") {
				in.IncludeWeekends = &opts.IncludeWeekends
			}
			if cmd.Flags().Changed("exceptions") {
				in.IncludeExceptions = &opts.IncludeExceptions
			}

			svc, err := env.service()
			if err != nil {
				return err
			}
			cal, err := svc.CreateCalendar(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("create calendar: %w", err)
			}
			env.logger.Info("calendar created", "calendar_id", cal.ID, "items", len(cal.Items))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created calendar %s (%s) with %d items\n", cal.ID, cal.Name, len(cal.Items))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Name, "name", "", "calendar name")
	flags.StringVar(&opts.Preset, "preset", "", "embedded preset key (sample, semester)")
	flags.StringVar(&opts.Start, "start", "", "first day (YYYY-MM-DD, default today)")
	flags.IntVar(&opts.TotalDays, "total-days", 0, "items generated per standard layer")
	flags.BoolVar(&opts.IncludeWeekends, "weekends", false, "schedule on Saturdays and Sundays")
	flags.BoolVar(&opts.IncludeExceptions, "exceptions", true, "skip exception days")
	flags.StringArrayVar(&opts.Layers, "layer", nil, "standard layer as key=Name (repeatable)")
	flags.StringArrayVar(&opts.ExceptionLayers, "exception-layer", nil, "exception layer as key=Name (repeatable)")
	flags.StringSliceVar(&opts.Independent, "independent", nil, "layer keys whose items move alone")
	return cmd
}

func newCalendarUpdateCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		Name              string
		IncludeWeekends   bool
		IncludeExceptions bool
		Markdown          bool
	}
	cmd := &cobra.Command{
		Use:   "update <calendar-id>",
		Short: "Rename a calendar or change its weekend and exception rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := app.UpdateCalendarInput{CalendarID: args[0]}
			if cmd.Flags().Changed("name") {
				in.Name = &opts.Name
			}
			if cmd.Flags().Changed("weekends") {
				in.IncludeWeekends = &opts.IncludeWeekends
			}
			if cmd.Flags().Changed("exceptions") {
				in.IncludeExceptions = &opts.IncludeExceptions
			}
			if in.Name == nil && in.IncludeWeekends == nil && in.IncludeExceptions == nil {
				return errors.New("nothing to update: pass --name, --weekends or --exceptions")
			}
			svc, err := env.service()
			if err != nil {
				return err
			}
			res, err := svc.UpdateCalendar(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("update calendar: %w", err)
			}
			return writeReflow(cmd, "Calendar updated", res, opts.Markdown)
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "new calendar name")
	cmd.Flags().BoolVar(&opts.IncludeWeekends, "weekends", false, "schedule on Saturdays and Sundays")
	cmd.Flags().BoolVar(&opts.IncludeExceptions, "exceptions", true, "skip exception days")
	cmd.Flags().BoolVar(&opts.Markdown, "markdown", false, "print the raw markdown report")
	return cmd
}

func newCalendarDeleteCommand(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <calendar-id>",
		Short: "Delete a calendar and its change history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			if err := svc.DeleteCalendar(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete calendar: %w", err)
			}
			env.logger.Info("calendar deleted", "calendar_id", args[0])
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted calendar %s\n", args[0])
			return nil
		},
	}
}

func newSeedCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		Preset string
		Start  string
		Force  bool
	}
	cmd := &cobra.Command{
		Use:     "seed",
		Short:   "Create the sample calendar unless it already exists",
		GroupID: groupCalendar,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := preset.Load(opts.Preset)
			if err != nil {
				return err
			}
			start, err := parseOptionalDate("--start", opts.Start)
			if err != nil {
				return err
			}
			svc, err := env.service()
			if err != nil {
				return err
			}
			if !opts.Force {
				rows, err := svc.ListCalendars(cmd.Context())
				if err != nil {
					return fmt.Errorf("list calendars: %w", err)
				}
				for _, row := range rows {
					if row.Name == p.Name {
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s already exists (%s), skipping seed\n", p.Name, row.ID)
						return nil
					}
				}
			}
			cal, err := svc.CreateCalendar(cmd.Context(), p.CreateInput("", start))
			if err != nil {
				return fmt.Errorf("seed %s: %w", p.Key, err)
			}
			env.logger.Info("calendar seeded", "preset", p.Key, "calendar_id", cal.ID, "items", len(cal.Items))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seeded %s as %s with %d items\n", p.Name, cal.ID, len(cal.Items))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Preset, "preset", preset.DefaultKey, "embedded preset key")
	cmd.Flags().StringVar(&opts.Start, "start", "", "first day (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "create even when a calendar with the preset name exists")
	return cmd
}

// layerInputs parses key=Name layer flags.
func layerInputs(standard, exception, independent []string) ([]domain.LayerInput, error) {
	alone := map[string]struct{}{}
	for _, key := range independent {
		alone[strings.TrimSpace(key)] = struct{}{}
	}
	out := make([]domain.LayerInput, 0, len(standard)+len(exception))
	add := func(raw string, kind domain.LayerKind) error {
		key, name, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid layer %q: want key=Name", raw)
		}
		in := domain.LayerInput{Key: key, Name: name, Kind: string(kind)}
		if _, ok := alone[key]; ok {
			in.ChainBehavior = string(domain.ChainIndependent)
		}
		out = append(out, in)
		return nil
	}
	for _, raw := range standard {
		if err := add(raw, domain.LayerKindStandard); err != nil {
			return nil, err
		}
	}
	for _, raw := range exception {
		if err := add(raw, domain.LayerKindException); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, errors.New("at least one --layer or --exception-layer is required")
	}
	return out, nil
}

// parseOptionalDate parses a YYYY-MM-DD flag value; empty yields nil.
func parseOptionalDate(flag, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := schedule.ParseDateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", flag, err)
	}
	return &d, nil
}
