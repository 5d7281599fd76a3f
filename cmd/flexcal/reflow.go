package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/render"
)

// reportWidth is the glamour wrap width for terminal reports.
const reportWidth = 100

func newShiftCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		Days     int
		Layers   []string
		DryRun   bool
		Markdown bool
	}
	cmd := &cobra.Command{
		Use:   "shift <calendar-id> <item-id>",
		Short: "Move an item by calendar days and reflow its chain",
		Long: `Move an item by --days calendar days and carry every later item of its
linked layer (and any --layer) along, skipping weekends and exception days.

Examples:
  flexcal shift cal-1 item-7 --days 2
  flexcal shift cal-1 item-7 --days=-1 --layer student-a --dry-run`,
		GroupID: groupSchedule,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			in := app.ShiftItemsInput{
				CalendarID: args[0],
				ItemID:     args[1],
				DeltaDays:  opts.Days,
				LayerKeys:  opts.Layers,
			}
			if opts.DryRun {
				res, err := svc.PreviewShift(cmd.Context(), in)
				if err != nil {
					return fmt.Errorf("preview shift: %w", err)
				}
				return writeReflow(cmd, "Shift preview", res, opts.Markdown)
			}
			res, err := svc.ShiftItems(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("shift items: %w", err)
			}
			env.logger.Info("items shifted", "calendar_id", args[0], "item_id", args[1], "delta_days", opts.Days, "moved", len(res.Changes))
			return writeReflow(cmd, "Shift applied", res, opts.Markdown)
		},
	}
	cmd.Flags().IntVar(&opts.Days, "days", 0, "calendar days to move the item; negative moves earlier")
	cmd.Flags().StringSliceVar(&opts.Layers, "layer", nil, "extra linked layers to cascade into")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "preview the reflow without saving")
	cmd.Flags().BoolVar(&opts.Markdown, "markdown", false, "print the raw markdown report")
	_ = cmd.MarkFlagRequired("days")
	return cmd
}

func newSplitCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		Parts    int
		Markdown bool
	}
	cmd := &cobra.Command{
		Use:     "split <calendar-id> <item-id>",
		Short:   "Split an item into 2-6 parts on consecutive valid days",
		GroupID: groupSchedule,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			res, err := svc.SplitItem(cmd.Context(), app.SplitItemInput{
				CalendarID: args[0],
				ItemID:     args[1],
				Parts:      opts.Parts,
			})
			if err != nil {
				return fmt.Errorf("split item: %w", err)
			}
			env.logger.Info("item split", "calendar_id", args[0], "item_id", args[1], "parts", opts.Parts)
			return writeReflow(cmd, "Split applied", res, opts.Markdown)
		},
	}
	cmd.Flags().IntVar(&opts.Parts, "parts", 2, "number of parts")
	cmd.Flags().BoolVar(&opts.Markdown, "markdown", false, "print the raw markdown report")
	return cmd
}

func newUnsplitCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		ItemID   string
		GroupID  string
		Markdown bool
	}
	cmd := &cobra.Command{
		Use:     "unsplit <calendar-id>",
		Short:   "Collapse a split group back into one item",
		GroupID: groupSchedule,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			res, err := svc.UnsplitItem(cmd.Context(), app.UnsplitItemInput{
				CalendarID:   args[0],
				ItemID:       opts.ItemID,
				SplitGroupID: opts.GroupID,
			})
			if err != nil {
				return fmt.Errorf("unsplit item: %w", err)
			}
			env.logger.Info("item unsplit", "calendar_id", args[0], "item_id", opts.ItemID, "split_group_id", opts.GroupID)
			return writeReflow(cmd, "Unsplit applied", res, opts.Markdown)
		},
	}
	cmd.Flags().StringVar(&opts.ItemID, "item", "", "any part of the split group")
	cmd.Flags().StringVar(&opts.GroupID, "group", "", "split group id")
	cmd.MarkFlagsOneRequired("item", "group")
	cmd.Flags().BoolVar(&opts.Markdown, "markdown", false, "print the raw markdown report")
	return cmd
}

func newAddCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		Layer       string
		Date        string
		Title       string
		Label       string
		Description string
		Notes       string
		Duration    int
		Targets     []string
		Markdown    bool
	}
	cmd := &cobra.Command{
		Use:   "add <calendar-id>",
		Short: "Append an item to a layer",
		Long: `Append an item to the end of a layer. Without --date it lands one valid day
after the layer's last item. Items added to an exception layer black out their
day and reflow whatever sat on it.`,
		GroupID: groupSchedule,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseOptionalDate("--date", opts.Date)
			if err != nil {
				return err
			}
			svc, err := env.service()
			if err != nil {
				return err
			}
			res, err := svc.AddScheduledItem(cmd.Context(), app.AddItemInput{
				CalendarID:      args[0],
				LayerKey:        opts.Layer,
				Date:            date,
				Title:           opts.Title,
				Label:           opts.Label,
				Description:     opts.Description,
				Notes:           opts.Notes,
				DurationDays:    opts.Duration,
				TargetLayerKeys: opts.Targets,
			})
			if err != nil {
				return fmt.Errorf("add item: %w", err)
			}
			env.logger.Info("item added", "calendar_id", args[0], "item_id", res.Item.ID, "layer", res.Item.LayerKey)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s on %s (seq %d)\n", res.Item.ID, res.Item.Date.Format("2006-01-02"), res.Item.SequenceIndex)
			if len(res.Changes) == 0 {
				return nil
			}
			return writeReflow(cmd, "Reflow after add", res.ReflowResult, opts.Markdown)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Layer, "layer", "", "layer key")
	flags.StringVar(&opts.Date, "date", "", "item date (YYYY-MM-DD)")
	flags.StringVar(&opts.Title, "title", "", "item title")
	flags.StringVar(&opts.Label, "label", "", "short label")
	flags.StringVar(&opts.Description, "description", "", "description")
	flags.StringVar(&opts.Notes, "notes", "", "notes")
	flags.IntVar(&opts.Duration, "duration", 0, "duration in days")
	flags.StringSliceVar(&opts.Targets, "target", nil, "layers an exception applies to (empty means all)")
	flags.BoolVar(&opts.Markdown, "markdown", false, "print the raw markdown report")
	_ = cmd.MarkFlagRequired("layer")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newChangesCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		Limit    int
		Markdown bool
	}
	cmd := &cobra.Command{
		Use:     "changes <calendar-id>",
		Short:   "List a calendar's change history, newest first",
		GroupID: groupCalendar,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			events, err := svc.ListChangeEvents(cmd.Context(), args[0], opts.Limit)
			if err != nil {
				return fmt.Errorf("list changes: %w", err)
			}
			return writeMarkdown(cmd, render.ChangesMarkdown(args[0], events), opts.Markdown)
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (0 uses calendar.change_log_limit)")
	cmd.Flags().BoolVar(&opts.Markdown, "markdown", false, "print the raw markdown report")
	return cmd
}

// writeReflow prints the moved-item report of one operation.
func writeReflow(cmd *cobra.Command, title string, res app.ReflowResult, raw bool) error {
	return writeMarkdown(cmd, render.ReflowMarkdown(title, res.Calendar, res.Changes), raw)
}

func writeMarkdown(cmd *cobra.Command, markdown string, raw bool) error {
	out := markdown
	if !raw {
		r := &render.MarkdownRenderer{Style: "auto"}
		out = r.Render(markdown, reportWidth)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
