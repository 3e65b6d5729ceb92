// ABOUTME: The chat command: a terminal client that talks to a running kodejam server.
// ABOUTME: Builds the chat context from flags and an optional shapes file, then runs the TUI.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389-research/kodejam/client"
	"github.com/2389-research/kodejam/tui"
	"github.com/2389-research/kodejam/web"
)

type chatOptions struct {
	server     string
	token      string
	repo       string
	pageName   string
	pageID     string
	devURL     string
	shapesFile string
	resume     bool
	logFile    string
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	co := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a terminal chat against a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if co.server == "" {
				co.server = "http://" + cfg.Bind
			}
			if co.token == "" {
				co.token = cfg.AuthToken
			}

			chatCtx, err := co.chatContext()
			if err != nil {
				return err
			}

			if co.logFile == "" {
				dir, err := resolveDataDir(cfg.DataDir)
				if err != nil {
					return err
				}
				co.logFile = filepath.Join(dir, "chat.log")
			}
			f, err := openLogFile(co.logFile)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			logger, err := newLogger(f, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			c := client.New(co.server, co.token)
			c.Logger = logger
			c.MaxLineBytes = cfg.Agent.MaxLineBytes
			return tui.Run(cmd.Context(), tui.Options{
				Client:  c,
				Context: chatCtx,
				Resume:  co.resume,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&co.server, "server", "", "Server base URL (default http://<bind>)")
	f.StringVar(&co.token, "token", "", "Bearer token (default auth_token from config)")
	f.StringVar(&co.repo, "repo", ".", "Repository the agent works in")
	f.StringVar(&co.pageName, "page", "Untitled", "Canvas page name")
	f.StringVar(&co.pageID, "page-id", "", "Canvas page id (default: page name)")
	f.StringVar(&co.devURL, "dev-url", "", "Running dev server the agent may screenshot")
	f.StringVar(&co.shapesFile, "shapes", "", "JSON file with the selected canvas shapes")
	f.BoolVar(&co.resume, "resume", true, "Load the page's latest thread on start")
	f.StringVar(&co.logFile, "log-file", "", "Client log file (default <data dir>/chat.log)")
	return cmd
}

func (co *chatOptions) chatContext() (web.ChatContext, error) {
	repo, err := filepath.Abs(co.repo)
	if err != nil {
		return web.ChatContext{}, fmt.Errorf("resolve repo: %w", err)
	}
	shapes, err := readShapes(co.shapesFile)
	if err != nil {
		return web.ChatContext{}, err
	}
	return web.ChatContext{
		Shapes:   shapes,
		RepoPath: repo,
		PageName: co.pageName,
		PageID:   co.pageID,
		DevURL:   strings.TrimSpace(co.devURL),
	}, nil
}

// readShapes loads a JSON array of shapes, or an object with a "shapes"
// array. An empty path yields no shapes.
func readShapes(path string) ([]web.Shape, error) {
	if path == "" {
		return []web.Shape{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shapes: %w", err)
	}
	var shapes []web.Shape
	if err := json.Unmarshal(data, &shapes); err == nil {
		return shapes, nil
	}
	var wrapped struct {
		Shapes []web.Shape `json:"shapes"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse shapes %s: %w", path, err)
	}
	if wrapped.Shapes == nil {
		wrapped.Shapes = []web.Shape{}
	}
	return wrapped.Shapes, nil
}
