package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hylla/flexcal/internal/adapters/ical"
	serveradapter "github.com/hylla/flexcal/internal/adapters/server"
	servercommon "github.com/hylla/flexcal/internal/adapters/server/common"
)

func newServeCommand(env *cliEnv) *cobra.Command {
	var opts struct {
		HTTPBind    string
		APIEndpoint string
		MCPEndpoint string
		NoFeeds     bool
	}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP tools",
		Long: `Serve the REST API and stateless MCP endpoint on one listener. Configured
[[exceptions.feeds]] with a schedule are re-imported on their cron spec.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := env.service()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg := serveradapter.Config{
				HTTPBind:      firstNonEmpty(opts.HTTPBind, env.cfg.Server.HTTPBind),
				APIEndpoint:   firstNonEmpty(opts.APIEndpoint, env.cfg.Server.APIEndpoint),
				MCPEndpoint:   firstNonEmpty(opts.MCPEndpoint, env.cfg.Server.MCPEndpoint),
				ServerName:    env.appName,
				ServerVersion: version,
			}

			if feeds := feedsFromConfig(env.cfg.Exceptions.Feeds); len(feeds) > 0 && !opts.NoFeeds {
				refresher, err := ical.NewFeedRefresher(env.importer(svc), feeds, env.logger.With("component", "feeds"))
				if err != nil {
					return fmt.Errorf("configure feed refresher: %w", err)
				}
				scheduled, err := refresher.Start(ctx)
				if err != nil {
					return fmt.Errorf("start feed refresher: %w", err)
				}
				env.logger.Info("feed refresher started", "feeds", len(feeds), "scheduled", scheduled)
			}

			adapter := servercommon.NewAppServiceAdapter(svc)
			env.logger.Info("server starting", "http_bind", cfg.HTTPBind, "api_endpoint", cfg.APIEndpoint, "mcp_endpoint", cfg.MCPEndpoint)
			if err := serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
				Calendars: adapter,
				Exports:   adapter,
				Logger:    env.logger.With("component", "http"),
			}); err != nil {
				env.logger.Error("server stopped with error", "err", err)
				return fmt.Errorf("run server: %w", err)
			}
			env.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.HTTPBind, "http", "", "HTTP listen address (default from [server] http_bind)")
	cmd.Flags().StringVar(&opts.APIEndpoint, "api-endpoint", "", "HTTP API base endpoint")
	cmd.Flags().StringVar(&opts.MCPEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint")
	cmd.Flags().BoolVar(&opts.NoFeeds, "no-feeds", false, "do not schedule configured ICS feeds")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
