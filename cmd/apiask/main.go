package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yourorg/apiask/internal/answer"
	"github.com/yourorg/apiask/internal/blob"
	"github.com/yourorg/apiask/internal/config"
	"github.com/yourorg/apiask/internal/embedding"
	"github.com/yourorg/apiask/internal/pipeline"
	"github.com/yourorg/apiask/internal/retrieval"
	"github.com/yourorg/apiask/internal/server"
	"github.com/yourorg/apiask/internal/store"
)

const defaultConfigContent = `embedding:
  api_key: ""
  base_url: "https://api.openai.com/v1"
  model: "text-embedding-3-small"
  batch_size: 10
  timeout_seconds: 30

completion:
  api_key: ""
  base_url: "https://api.openai.com/v1"
  model: "gpt-4o"
  max_tokens: 512
  temperature: 0.2

store:
  driver: "sqlite"
  dsn: ""

blob:
  provider: "local"
  local_dir: ""
  bucket: ""
  region: "us-east-1"

retrieval:
  top_k: 5

server:
  host: "127.0.0.1"
  port: 4000

log:
  level: "info"
`

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "apiask",
		Short: "Question answering over OpenAPI specifications",
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")

	root.AddCommand(newInitCmd())
	root.AddCommand(newUploadCmd(&cfgPath))
	root.AddCommand(newAskCmd(&cfgPath))
	root.AddCommand(newListCmd(&cfgPath))
	root.AddCommand(newShowCmd(&cfgPath))
	root.AddCommand(newDeleteCmd(&cfgPath))
	root.AddCommand(newServeCmd(&cfgPath))

	return root
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.apiask directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".apiask")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "apiask.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "set embedding.api_key and completion.api_key in", cfgFile)
			return nil
		},
	}
}

func newUploadCmd(cfgPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an OpenAPI specification and index it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			p, cleanup, err := buildPipeline(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			api, err := p.Upload(cmd.Context(), filepath.Base(file), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s): %d endpoints, status %s\n",
				api.Name, api.ID, len(api.Endpoints), api.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "OpenAPI JSON file path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAskCmd(cfgPath *string) *cobra.Command {
	var apiID, question string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a question about an uploaded specification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateAsk(); err != nil {
				return err
			}
			p, cleanup, err := buildPipeline(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			reply, err := p.Ask(cmd.Context(), apiID, question)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiID, "api", "", "api id")
	cmd.Flags().StringVar(&question, "question", "", "question to ask")
	_ = cmd.MarkFlagRequired("api")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func newListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List uploaded specifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			apis, err := s.ListApis(cmd.Context())
			if err != nil {
				return err
			}
			if len(apis) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no apis uploaded")
				return nil
			}
			for _, api := range apis {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s  %s  %s\n",
					api.ID, api.Name, api.Status, api.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newShowCmd(cfgPath *string) *cobra.Command {
	var apiID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a specification with its endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			p, cleanup, err := buildPipeline(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			api, err := p.GetApi(cmd.Context(), apiID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api)
		},
	}
	cmd.Flags().StringVar(&apiID, "api", "", "api id")
	_ = cmd.MarkFlagRequired("api")
	return cmd
}

func newDeleteCmd(cfgPath *string) *cobra.Command {
	var apiID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a specification and its endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteApi(cmd.Context(), apiID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", apiID)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiID, "api", "", "api id")
	_ = cmd.MarkFlagRequired("api")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			p, cleanup, err := buildPipeline(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			logger := newLogger(cfg.Log.Level)
			srv, err := server.New(p, logger)
			if err != nil {
				return err
			}
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			logger.Info("listening", "addr", addr)
			return srv.ListenAndServe(addr)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "server host")
	cmd.Flags().IntVar(&port, "port", 0, "server port")
	return cmd
}

// buildPipeline assembles the full pipeline from config. Remote clients
// stay nil when their API key is absent, so uploads still work offline.
func buildPipeline(cmd *cobra.Command, cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	logger := newLogger(cfg.Log.Level)

	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	b, err := newBlob(cmd, cfg)
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	var embedder embedding.Embedder
	if cfg.Embedding.APIKey != "" {
		embedder = &embedding.Client{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
			Timeout: time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
			Logger:  logger,
		}
	}
	var completer answer.Completer
	if cfg.Completion.APIKey != "" {
		completer = &answer.Client{
			BaseURL:     cfg.Completion.BaseURL,
			APIKey:      cfg.Completion.APIKey,
			Model:       cfg.Completion.Model,
			MaxTokens:   cfg.Completion.MaxTokens,
			Temperature: cfg.Completion.Temperature,
			Timeout:     time.Duration(cfg.Completion.TimeoutSeconds) * time.Second,
			Logger:      logger,
		}
	}

	p := &pipeline.Pipeline{
		Store: s,
		Blob:  b,
		Indexer: &embedding.Indexer{
			Client:    embedder,
			Store:     s,
			BatchSize: cfg.Embedding.BatchSize,
			Logger:    logger,
		},
		Engine: &retrieval.Engine{
			Embedder: embedder,
			Store:    s,
			TopK:     cfg.Retrieval.TopK,
			Logger:   logger,
		},
		Synthesizer: &answer.Synthesizer{Client: completer},
		Logger:      logger,
	}
	return p, func() { _ = s.Close() }, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgresStore(cfg.Store.DSN, cfg.Store.Dimensions)
	default:
		dsn := cfg.Store.DSN
		if dsn == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			dsn = filepath.Join(home, ".apiask", "apiask.db")
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, err
			}
		}
		return store.NewSQLiteStore(dsn)
	}
}

func newBlob(cmd *cobra.Command, cfg *config.Config) (blob.Blob, error) {
	switch cfg.Blob.Provider {
	case "s3":
		return blob.NewS3Store(cmd.Context(), blob.S3Config{
			Bucket:         cfg.Blob.Bucket,
			Region:         cfg.Blob.Region,
			Endpoint:       cfg.Blob.Endpoint,
			ForcePathStyle: cfg.Blob.ForcePathStyle,
		})
	default:
		dir := cfg.Blob.LocalDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(home, ".apiask", "blobs")
		}
		return blob.NewLocalStore(dir)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
