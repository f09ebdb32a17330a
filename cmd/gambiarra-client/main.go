// Package main provides the CLI entry point for the gambiarra workspace
// client: the file/shell trust boundary half of gambiarra's two-process
// architecture. It dials an orchestration server, relays interactive user
// turns to it over the websocket wire protocol, and executes every
// execute_tool frame the server sends locally, inside the configured
// sandbox root, reporting results back as tool_result frames.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/trustgraph-ai/gambiarra/internal/config"
	"github.com/trustgraph-ai/gambiarra/internal/filecontext"
	"github.com/trustgraph-ai/gambiarra/internal/sandbox"
	"github.com/trustgraph-ai/gambiarra/internal/transport"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const clientProtocolVersion = 1

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := buildRootCmd(logger)
	if err := root.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "gambiarra-client",
		Short:        "Gambiarra workspace client",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "gambiarra-client.yaml", "path to client configuration")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to an orchestration server and start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(context.Background(), logger)
		},
	})

	return root
}

func runClient(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	workDir := cfg.Client.WorkingDirectory
	if workDir == "" {
		workDir = "."
	}
	paths, err := sandbox.NewPathSandbox(workDir)
	if err != nil {
		return fmt.Errorf("setting up path sandbox: %w", err)
	}
	commands := sandbox.NewCommandSandbox()
	tracker := filecontext.New(logger, 0)
	if err := tracker.StartWatching(); err != nil {
		logger.Warn("client: file watcher unavailable, falling back to poll-based staleness checks", "error", err)
	}
	defer tracker.Close()
	executor := filecontext.NewExecutor(paths, commands, tracker)
	if cfg.Sandbox.CommandTimeout > 0 {
		executor.CommandTimeout = cfg.Sandbox.CommandTimeout
	}
	for _, pattern := range cfg.Sandbox.ExtraAllowedCommands {
		commands.AllowPattern(pattern)
	}
	for _, pattern := range cfg.Sandbox.ExtraBlockedCommands {
		commands.BlockPattern(pattern)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.Client.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.Client.ServerURL, err)
	}
	conn := transport.New(logger, ws)

	sess := newClientSession(logger, conn, executor, cfg.Session)
	go func() {
		if err := conn.Run(ctx, sess.handle); err != nil {
			logger.Info("client: connection closed", "error", err)
		}
	}()

	if err := sess.connectAndCreateSession(); err != nil {
		return err
	}

	return sess.runREPL(ctx)
}

// runREPL reads one line at a time from stdin and sends each as a
// user_message frame, printing streamed assistant output and prompting for
// tool approvals as they arrive, until stdin closes or ctx is cancelled.
func (s *clientSession) runREPL(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("connected. type a message and press enter (Ctrl-D to quit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.sendUserMessage(line); err != nil {
			return err
		}
		s.waitForTurnEnd(ctx)
	}
}

// waitForTurnEnd blocks until the current turn's ai_response_chunk stream
// reports IsComplete, or ctx is cancelled, so the REPL doesn't prompt for a
// new line mid-turn.
func (s *clientSession) waitForTurnEnd(ctx context.Context) {
	select {
	case <-s.turnDone:
	case <-ctx.Done():
	case <-time.After(5 * time.Minute):
	}
}
