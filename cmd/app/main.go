package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	"github.com/starford/ansuz/internal/item"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "ansuz",
		Usage:   "Spaced-repetition review of Markdown notes and flashcards",
		Version: version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live vault watching (default)",
				Action: run,
			},
			{
				Name:  "mcp",
				Usage: "Serve review tools to an LLM client over stdio",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.RunMCP(ctx, opts...)
				},
			},
			{
				Name:  "queue",
				Usage: "Sync the vault, rebuild today's queue and print it",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.RunQueue(ctx, opts...)
				},
			},
			{
				Name:  "switch",
				Usage: "Convert every item to another scheduling algorithm",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Target algorithm: default, sm2, anki or fsrs",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.RunSwitch(ctx, item.Kind(cmd.String("to")), opts...)
				},
			},
			{
				Name:  "prune",
				Usage: "Delete items whose notes or cards are gone",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.RunPrune(ctx, opts...)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
