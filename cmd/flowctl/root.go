package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jovicsi/flowminds.ai/application/session"
	"github.com/Jovicsi/flowminds.ai/infrastructure/config"
	"github.com/Jovicsi/flowminds.ai/infrastructure/di"
)

// offline marks commands that need no backend
const offline = "offline"

// app carries what every command shares. Tests set container directly.
type app struct {
	container *di.ClientContainer
	cleanup   func()

	userID  string
	email   string
	name    string
	baseURL string
}

func (a *app) user() (session.User, error) {
	if a.userID == "" {
		return session.User{}, errors.New("no user: pass --user or set FLOWMINDS_USER_ID")
	}
	return session.User{ID: a.userID, Email: a.email, DisplayName: a.name}, nil
}

func (a *app) setup(ctx context.Context) error {
	if a.container != nil {
		return nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	c, cleanup, err := di.InitializeClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	a.container, a.cleanup = c, cleanup
	return nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	if a.container != nil {
		_ = a.container.Logger.Sync()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "Manage FlowMinds canvases from the terminal",
		Long:          `flowctl lists, shares and edits FlowMinds projects using the same storage and relay as the web editor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[offline] == "true" {
				return nil
			}
			return a.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.userID, "user", os.Getenv("FLOWMINDS_USER_ID"), "acting user id")
	root.PersistentFlags().StringVar(&a.email, "email", os.Getenv("FLOWMINDS_EMAIL"), "acting user email")
	root.PersistentFlags().StringVar(&a.name, "name", os.Getenv("FLOWMINDS_NAME"), "display name shown to collaborators")
	root.PersistentFlags().StringVar(&a.baseURL, "base-url", envOr("FLOWMINDS_APP_URL", "https://flowminds.ai/"), "web app address used in share links")

	root.AddCommand(newProjectCmd(a), newPlanCmd(a), newMembersCmd(a))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
