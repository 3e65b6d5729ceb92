// ABOUTME: The serve command: wires store, agent launcher, capture pipeline, and HTTP server from config.
// ABOUTME: Runs until the command context is cancelled, then shuts the server down and closes the store.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/2389-research/kodejam/agent"
	"github.com/2389-research/kodejam/capture"
	"github.com/2389-research/kodejam/config"
	"github.com/2389-research/kodejam/store"
	"github.com/2389-research/kodejam/web"
)

const dbFileName = "kodejam.db"

func newServeCmd(opts *rootOptions) *cobra.Command {
	var bind, dataDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Bind = bind
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			srv, closeStore, err := buildServer(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					logger.Warn("close store", "err", err)
				}
			}()

			logger.Info("kodejam listening", "addr", cfg.Bind, "data_dir", cfg.DataDir, "auth", cfg.AuthToken != "")
			if err := srv.ListenAndServe(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			logger.Info("kodejam stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for the sqlite database (overrides config)")
	return cmd
}

// buildServer opens the store and assembles the server. The returned func
// closes the store.
func buildServer(cfg *config.Config, logger *log.Logger) (*web.Server, func() error, error) {
	dir, err := resolveDataDir(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	cfg.DataDir = dir

	st, err := store.Open(filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	launcher := &agent.Launcher{
		Binary:    cfg.Agent.Binary,
		MaxTurns:  cfg.Agent.MaxTurns,
		ExtraArgs: cfg.Agent.ExtraArgs,
		Grace:     cfg.Agent.TerminateGrace,
		EnvPolicy: agent.ParseEnvPolicy(cfg.Agent.EnvPolicy),
		Env:       cfg.Agent.Env,
		Logger:    logger.WithPrefix("agent"),
	}

	var pipeline *capture.Pipeline
	if cfg.Capture.IsEnabled() {
		pipeline = &capture.Pipeline{
			NewBrowser: capture.ChromeFactory(capture.ChromeOptions{
				ExecPath: cfg.Capture.ChromePath,
				Headless: cfg.Capture.IsHeadless(),
				Logger:   logger.WithPrefix("chrome"),
			}),
			Width:   cfg.Capture.Width,
			Height:  cfg.Capture.Height,
			Timeout: cfg.Capture.NavigateTimeout,
			Settle:  cfg.Capture.SettleDelay,
			Logger:  logger.WithPrefix("capture"),
		}
	}

	srv, err := web.NewServer(web.Config{
		Addr:           cfg.Bind,
		AuthToken:      cfg.AuthToken,
		TurnTimeout:    cfg.Agent.TurnTimeout,
		MaxLineBytes:   cfg.Agent.MaxLineBytes,
		BuildMaxTurns:  cfg.Agent.BuildMaxTurns,
		BrowseRoot:     cfg.BrowseRoot,
		AllowedOrigins: cfg.AllowedOrigins,
	}, web.Deps{
		Store:    st,
		Launcher: launcher,
		Pipeline: pipeline,
		Logger:   logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return srv, st.Close, nil
}

// openLogFile opens path for appending, creating parent directories.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
