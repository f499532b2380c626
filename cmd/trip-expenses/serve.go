package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/trip-expenses/internal/api"
	"github.com/zombor/trip-expenses/internal/intake"
	"github.com/zombor/trip-expenses/internal/scanning"
)

type serveConfig struct {
	root         *rootConfig
	port         *int
	scannerType  *string
	geminiKey    *string
	geminiModel  *string
	ollamaURL    *string
	ollamaModel  *string
	authUser     *string
	authPass     *string
	pollInterval *time.Duration
}

func newServeCommand(root *rootConfig) *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(root.flags)
	c := &serveConfig{
		root:         root,
		port:         fs.IntLong("port", 8080, "HTTP server port"),
		scannerType:  fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'"),
		geminiKey:    fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:  fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name"),
		ollamaURL:    fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:  fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)"),
		authUser:     fs.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass:     fs.StringLong("auth-pass", "", "Basic auth password (optional)"),
		pollInterval: fs.DurationLong("poll-interval", 5*time.Second, "How often queued receipts are scanned"),
	}
	return &ff.Command{
		Name:      "serve",
		Usage:     "trip-expenses serve [FLAGS]",
		ShortHelp: "Run the HTTP API and the receipt processing worker",
		Flags:     fs,
		Exec:      c.exec,
	}
}

func (c *serveConfig) newScanner(ctx context.Context) (scanning.Scanner, error) {
	switch *c.scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *c.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *c.geminiModel)
		return scanning.NewGemini(ctx, apiKey, *c.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *c.ollamaURL, "model", *c.ollamaModel)
		return scanning.NewOllama(*c.ollamaURL, *c.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: valid types are gemini or ollama", *c.scannerType)
	}
}

func (c *serveConfig) exec(ctx context.Context, args []string) error {
	slog.Info("Initializing database...", "path", *c.root.dbPath)
	m, store, err := c.root.openStore(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	scanner, err := c.newScanner(ctx)
	if err != nil {
		return err
	}
	defer scanner.Close()

	slog.Info("Initializing storage...", "path", *c.root.storagePath)
	files, err := intake.NewLocalStorage(*c.root.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	svc := intake.NewService(store, scanner, files)
	server := api.NewServer(store, svc, files, api.BasicAuth{
		Username: *c.authUser,
		Password: *c.authPass,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := svc.Run(ctx, *c.pollInterval); err != nil {
			slog.Error("Receipt worker stopped", "error", err)
		}
	}()

	if *c.authUser != "" || *c.authPass != "" {
		slog.Info("Basic auth enabled", "user", *c.authUser)
	}

	addr := fmt.Sprintf(":%d", *c.port)
	serveErr := server.Start(ctx, addr)

	cancel()
	<-workerDone
	slog.Info("Shutting down...")
	return serveErr
}
