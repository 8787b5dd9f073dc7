package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/taskhive/taskhive/internal"
	"github.com/taskhive/taskhive/internal/fixtures"
	"github.com/taskhive/taskhive/internal/storage"
	pkgconfig "github.com/taskhive/taskhive/pkg/config"
)

type runFunc func(ctx context.Context, opts ...internal.Option) error

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file (optional)",
			DefaultText: "config/config.yaml",
			Value:       "config/config.yaml",
			Sources:     cli.EnvVars("APP_CONFIG_FILE"),
		},
		&cli.IntFlag{
			Name:    "api-port",
			Usage:   "Public API port (overrides the config file)",
			Sources: cli.EnvVars("API_PORT"),
		},
		&cli.IntFlag{
			Name:    "agents-port",
			Usage:   "Agent service port (overrides the config file)",
			Sources: cli.EnvVars("AGENTS_PORT"),
		},
		&cli.BoolFlag{
			Name:    "seed-integrations",
			Usage:   "Seed the demo integrations for the default owner at start-up",
			Sources: cli.EnvVars("SEED_INTEGRATIONS"),
		},
	}
}

// loadConfig layers defaults, the config file, then flags and their env
// sources that were explicitly set.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("api-port") {
		cfg.App.HTTP.Port = int(cmd.Int("api-port"))
	}
	if cmd.IsSet("agents-port") {
		cfg.Agents.HTTP.Port = int(cmd.Int("agents-port"))
	}
	if cmd.IsSet("seed-integrations") {
		cfg.Integrations.Seed = cmd.Bool("seed-integrations")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func service(run runFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := run(ctx, internal.WithConfig(cfg)); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func initFixtures(_ context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		return err
	}
	written, err := fixtures.WriteDefaults(store)
	if err != nil {
		return fmt.Errorf("write fixtures: %w", err)
	}
	for _, name := range written {
		fmt.Println(name)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "taskhive",
		Usage: "Task management backend with email and meeting extraction agents",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "api",
				Usage:  "Run the public API",
				Action: service(internal.RunAPI),
			},
			{
				Name:   "agents",
				Usage:  "Run the internal agent-trigger service",
				Action: service(internal.RunAgents),
			},
			{
				Name:   "all",
				Usage:  "Run the API and the agent service in one process",
				Action: service(internal.RunAll),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the task tools over MCP on stdio",
				Action: service(internal.RunMCP),
			},
			{
				Name:  "fixtures",
				Usage: "Manage sync fixtures",
				Commands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Write the default email and meeting fixtures",
						Action: initFixtures,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "dir",
								Usage: "Fixtures directory",
								Value: "./fixtures",
							},
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
