package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"smart-mcp/internal/config"
	"smart-mcp/internal/domain"
	"smart-mcp/internal/embedding"
	"smart-mcp/internal/presentation/mcp"
	"smart-mcp/internal/presentation/web"
	"smart-mcp/internal/semsync"
	"smart-mcp/internal/store"
	"smart-mcp/internal/vecindex"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "smart-mcp",
	Short:        "MCP server with a semantic index over prompts, resources and tools",
	SilenceUsage: true,
}

var serveStdio bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server (HTTP by default, --stdio for stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.Logging)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, closeStore, err := buildService(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("bringing index up to date: %w", err)
		}
		defer func() {
			if err := svc.Flush(context.Background()); err != nil {
				slog.Warn("persisting index at shutdown failed", "error", err)
			}
		}()

		dispatcher := mcp.NewDispatcher(svc, cfg.Index.TopK)
		if serveStdio {
			// Stdout carries the protocol; logs already go to stderr.
			err = dispatcher.ServeStdio(ctx, os.Stdin, os.Stdout)
		} else {
			err = web.New(svc, dispatcher).Serve(ctx, cfg.Server.HTTPAddr)
		}
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index from store content and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.Logging)

		svc, closeStore, err := buildService(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		return svc.ReindexAll(cmd.Context())
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sample prompts, resources and tools into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.Logging)

		svc, closeStore, err := buildService(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := svc.Start(cmd.Context()); err != nil {
			return err
		}
		for _, in := range seedArtifacts() {
			a, err := svc.Create(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("seeding %q: %w", in.Name, err)
			}
			fmt.Printf("created %s %s (%s)\n", a.Kind, a.Name, a.ID)
		}
		return nil
	},
}

func buildService(cfg *config.Config) (*semsync.Service, func(), error) {
	repo, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	var provider embedding.Provider
	switch cfg.Embedding.Provider {
	case config.ProviderHTTP:
		provider = embedding.NewHTTPProvider(
			cfg.Embedding.BaseURL,
			cfg.Embedding.APIKey,
			cfg.Embedding.Model,
			cfg.Embedding.Dimension,
			cfg.Embedding.Timeout,
		)
	default:
		provider = embedding.NewHasher(cfg.Embedding.Dimension, cfg.Embedding.Model)
	}

	index := vecindex.New(provider.Dimension())
	svc := semsync.NewService(repo, provider, index, cfg.Index.SnapshotPath)

	closeStore := func() {
		if err := repo.Close(); err != nil {
			slog.Warn("closing store failed", "error", err)
		}
	}
	return svc, closeStore, nil
}

// setupLogging configures the process-wide slog default. Output goes to
// stderr so the stdio transport keeps stdout for protocol frames.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func seedArtifacts() []domain.CreateInput {
	return []domain.CreateInput{
		{
			Kind: domain.KindPrompt,
			Name: "Code Review Assistant",
			Role: domain.RoleSystem,
			Content: "You are a senior code reviewer. Analyze the provided code for best practices, " +
				"potential bugs, performance issues and security vulnerabilities. " +
				"Provide constructive feedback with specific examples.",
			Tags: []string{"code-review", "quality"},
		},
		{
			Kind: domain.KindPrompt,
			Name: "Documentation Generator",
			Role: domain.RoleSystem,
			Content: "You are a technical writer. Generate clear, concise documentation for code, " +
				"covering purpose, parameters, usage examples and edge cases.",
			Tags: []string{"documentation", "technical-writing"},
		},
		{
			Kind: domain.KindPrompt,
			Name: "Bug Analyzer",
			Role: domain.RoleUser,
			Content: "I'm experiencing a bug where {describe_bug}. Here's the relevant code:\n\n{code_snippet}\n\n" +
				"Can you help me identify the issue and suggest a fix?",
			Tags: []string{"debugging", "troubleshooting"},
		},
		{
			Kind:        domain.KindResource,
			Name:        "Message Queue Quick Start",
			Description: "Guide for setting up a message broker and writing a first publisher and consumer",
			Category:    "Messaging",
			Content: "# Message Queue Quick Start\n\nRun the broker, declare a queue, publish a message, " +
				"then attach a consumer with manual acknowledgements before moving to production settings.",
			Tags: []string{"messaging", "queues"},
		},
		{
			Kind:        domain.KindResource,
			Name:        "HTTP API Conventions",
			Description: "House rules for REST endpoints: naming, status codes, pagination and errors",
			Category:    "Guides",
			Content: "# HTTP API Conventions\n\nUse plural nouns for collections, return 201 with the created " +
				"record, 204 for deletes, and a JSON problem body for every error.",
			Tags: []string{"api", "rest"},
		},
		{
			Kind:        domain.KindTool,
			Name:        "slugify",
			Description: "Turn a title into a URL-safe slug",
			Code: "def slugify(title):\n    return '-'.join(\n        part for part in ''.join(\n            c.lower() if c.isalnum() else ' ' for c in title\n        ).split()\n    )\n",
			Tags: []string{"text", "util"},
		},
		{
			Kind:        domain.KindTool,
			Name:        "retry_with_backoff",
			Description: "Retry a function with exponential backoff and jitter",
			Code: "import random, time\n\ndef retry(fn, attempts=5, base=0.2):\n    for i in range(attempts):\n        try:\n            return fn()\n        except Exception:\n            if i == attempts - 1:\n                raise\n            time.sleep(base * 2 ** i + random.random() * base)\n",
			Tags: []string{"reliability", "util"},
		},
	}
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	rootCmd.AddCommand(serveCmd, reindexCmd, seedCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
