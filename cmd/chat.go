package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stationmind/stationmind/internal/app"
	"github.com/stationmind/stationmind/internal/config"
	"github.com/stationmind/stationmind/internal/orchestrator"
	"github.com/stationmind/stationmind/internal/session"
)

var chatNew bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "start a fresh session instead of resuming the last one")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	sessionID, err := resolveSessionID(chatNew)
	if err != nil {
		return err
	}

	fmt.Printf("stationmind %s\n", AppVersion)
	fmt.Println("输入 /quit、/exit 或 /q 退出。")
	fmt.Printf("Session: %s\n\n", sessionID)

	authToken := os.Getenv("STATIONMIND_AUTH_TOKEN")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch input {
		case "/quit", "/exit", "/q":
			fmt.Println("再见。")
			return nil
		}

		if err := runTurn(ctx, a.Orchestrator, sessionID, input, authToken); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Println()
	}
	return scanner.Err()
}

// runTurn processes one REPL turn, streaming the answer to stdout.
func runTurn(ctx context.Context, orch *orchestrator.Orchestrator, sessionID, input, authToken string) error {
	_, err := orch.ProcessTurn(ctx, orchestrator.TurnRequest{
		SessionID: sessionID,
		UserInput: input,
		AuthToken: authToken,
	}, orchestrator.Events{
		OnChunk: func(_ context.Context, chunk string) error {
			fmt.Print(chunk)
			return nil
		},
		OnToolDone: func(context.Context) error {
			fmt.Print(orchestrator.MarkerToolDone)
			return nil
		},
	})
	fmt.Println()
	return err
}

// resolveSessionID resumes the recorded session unless a fresh one is
// requested.
func resolveSessionID(fresh bool) (string, error) {
	if !fresh {
		if id, err := session.LoadCurrentSessionID(); err == nil && id != "" {
			return id, nil
		} else if err != nil {
			return "", fmt.Errorf("loading current session: %w", err)
		}
	}

	id := uuid.NewString()
	if err := session.SaveCurrentSessionID(id); err != nil {
		return "", fmt.Errorf("saving current session: %w", err)
	}
	return id, nil
}
