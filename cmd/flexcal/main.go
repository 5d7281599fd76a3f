package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hylla/flexcal/internal/adapters/ical"
	serveradapter "github.com/hylla/flexcal/internal/adapters/server"
	"github.com/hylla/flexcal/internal/adapters/storage/sqlite"
	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/config"
	"github.com/hylla/flexcal/internal/platform"
)

// version is stamped at build time.
var version = "dev"

// serveCommandRunner starts the HTTP+MCP server; tests swap it out.
var serveCommandRunner = serveradapter.Run

// nowFunc is the wall clock used for services and exports.
var nowFunc = time.Now

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := newCLIEnv(os.Stdout, os.Stderr)
	root := newRootCommand(env)
	err := fang.Execute(ctx, root, fang.WithVersion(version))
	if closeErr := env.Close(); closeErr != nil {
		fmt.Fprintln(os.Stderr, "warning:", closeErr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// run executes one command line without the fang presentation layer.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	env := newCLIEnv(stdout, stderr)
	root := newRootCommand(env)
	root.SetArgs(args)
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)
	err := root.ExecuteContext(ctx)
	if closeErr := env.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// cliEnv carries resolved paths, config, and lazily opened storage for one invocation.
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string
	appName    string
	devMode    bool

	paths  platform.Paths
	cfg    config.Config
	logger *runtimeLogger
	repo   *sqlite.Repository
	svc    *app.Service
}

func newCLIEnv(stdout, stderr io.Writer) *cliEnv {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	appName := "flexcal"
	if envApp := strings.TrimSpace(os.Getenv("FLEXCAL_APP_NAME")); envApp != "" {
		appName = envApp
	}
	devMode := version == "dev"
	if envDev, ok := parseBoolEnv("FLEXCAL_DEV_MODE"); ok {
		devMode = envDev
	}
	return &cliEnv{
		stdout:  stdout,
		stderr:  stderr,
		appName: appName,
		devMode: devMode,
	}
}

// resolvePaths resolves platform paths and the effective config/db paths.
func (e *cliEnv) resolvePaths() error {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: e.appName,
		DevMode: e.devMode,
	})
	if err != nil {
		return err
	}
	e.paths = paths
	if strings.TrimSpace(e.configPath) == "" {
		if envPath := strings.TrimSpace(os.Getenv("FLEXCAL_CONFIG")); envPath != "" {
			e.configPath = envPath
		} else {
			e.configPath = paths.ConfigPath
		}
	}
	return nil
}

// load resolves config and the runtime logger once.
func (e *cliEnv) load() error {
	if e.logger != nil {
		return nil
	}
	if err := e.resolvePaths(); err != nil {
		return err
	}
	dbPath := strings.TrimSpace(e.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("FLEXCAL_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = e.paths.DBPath
		}
	}
	cfg, err := config.Load(e.configPath, config.Default(dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", e.configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	e.cfg = cfg

	logger, err := newRuntimeLogger(e.stderr, e.appName, e.devMode, cfg.Logging, nowFunc)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	e.logger = logger
	logger.Debug("configuration loaded", "config_path", e.configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}
	return nil
}

// service opens the sqlite repository and builds the application service.
func (e *cliEnv) service() (*app.Service, error) {
	if e.svc != nil {
		return e.svc, nil
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	if err := config.EnsureConfigDir(e.cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	repo, err := sqlite.Open(e.cfg.Database.Path)
	if err != nil {
		e.logger.Error("sqlite open failed", "db_path", e.cfg.Database.Path, "err", err)
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	e.repo = repo
	e.logger.Debug("sqlite repository ready", "db_path", e.cfg.Database.Path)

	e.svc = app.NewService(repo, uuid.NewString, nowFunc, app.ServiceConfig{
		DefaultTotalDays:         e.cfg.Calendar.TotalDays,
		DefaultIncludeWeekends:   e.cfg.Calendar.IncludeWeekends,
		DefaultIncludeExceptions: e.cfg.Calendar.IncludeExceptions,
		ClampSplitParts:          e.cfg.Calendar.ClampSplitParts,
		ChangeLogLimit:           e.cfg.Calendar.ChangeLogLimit,
	})
	return e.svc, nil
}

// importer builds an ICS importer that caches URL feeds under the profile's data dir.
func (e *cliEnv) importer(svc *app.Service) *ical.Importer {
	return ical.NewImporter(svc, ical.NewFetcher(nil).WithCacheDir(e.paths.FeedCacheDir), nowFunc)
}

// Close releases the repository and the dev log file.
func (e *cliEnv) Close() error {
	var firstErr error
	if e.repo != nil {
		if err := e.repo.Close(); err != nil {
			e.logger.Warn("sqlite close failed", "db_path", e.cfg.Database.Path, "err", err)
			firstErr = err
		}
		e.repo = nil
		e.svc = nil
	}
	if err := e.logger.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close runtime log sink: %w", err)
	}
	return firstErr
}

func newRootCommand(env *cliEnv) *cobra.Command {
	root := &cobra.Command{
		Use:   "flexcal",
		Short: "Layered schedule calendars that reflow around exceptions",
		Long: `flexcal keeps ordered, layered schedules (lessons, tracks, students) on
valid days. Shifting, splitting or blacking out a day reflows every linked
item downstream, skipping weekends and exception days.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&env.configPath, "config", "", "path to config TOML (env FLEXCAL_CONFIG)")
	flags.StringVar(&env.dbPath, "db", "", "path to sqlite database (env FLEXCAL_DB_PATH)")
	flags.StringVar(&env.appName, "app", env.appName, "application name for config/data path resolution")
	flags.BoolVar(&env.devMode, "dev", env.devMode, "use dev mode paths (<app>-dev)")

	root.AddGroup(
		&cobra.Group{ID: groupCalendar, Title: "Calendars:"},
		&cobra.Group{ID: groupSchedule, Title: "Scheduling:"},
		&cobra.Group{ID: groupTransfer, Title: "Import and export:"},
	)
	root.AddCommand(
		newPathsCommand(env),
		newServeCommand(env),
		newCalendarCommand(env),
		newSeedCommand(env),
		newShiftCommand(env),
		newSplitCommand(env),
		newUnsplitCommand(env),
		newAddCommand(env),
		newChangesCommand(env),
		newExceptionsCommand(env),
		newExportCommand(env),
		newImportCommand(env),
		newExportICSCommand(env),
	)
	return root
}

// Command group IDs.
const (
	groupCalendar = "calendar"
	groupSchedule = "schedule"
	groupTransfer = "transfer"
)

func newPathsCommand(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.resolvePaths(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", env.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", env.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", env.configPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", env.paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", env.paths.DBPath)
			_, _ = fmt.Fprintf(out, "feed_cache: %s\n", env.paths.FeedCacheDir)
			return nil
		},
	}
}

// parseBoolEnv parses a boolean environment variable; ok is false when unset or invalid.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
