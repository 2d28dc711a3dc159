package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/braid"
	"github.com/aretw0/braid/internal/cli"
	"github.com/aretw0/braid/internal/presentation/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Reads one message per line and prints the reply. Pass --session to
resume a stored conversation; without it a new session id is generated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := buildStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate session id: %w", err)
			}
			sessionID = id.String()
		}
		plain, _ := cmd.Flags().GetBool("plain")

		interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		opts := cli.ChatOptions{SessionID: sessionID, Quiet: !interactive}
		if interactive {
			tui.PrintBanner(os.Stdout, braid.Version)
			if !plain {
				opts.Render = tui.NewRenderer()
			}
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		err = cli.RunChat(sigCtx, stack, opts, os.Stdin, os.Stdout)
		if sigCtx.Signal() == os.Interrupt {
			fmt.Println("[CTRL+C]")
		}
		return cli.HandleExecutionError(err)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session id to resume")
	chatCmd.Flags().Bool("plain", false, "Print replies as they stream instead of rendering markdown")
}
