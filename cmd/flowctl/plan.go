package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jovicsi/flowminds.ai/application/editor"
	"github.com/Jovicsi/flowminds.ai/application/session"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/infrastructure/di"
)

// withEditor opens projectID for editing, runs fn and saves the result
func withEditor(cmd *cobra.Command, a *app, projectID string, fn func(*editor.Editor) error) error {
	user, err := a.user()
	if err != nil {
		return err
	}
	if projectID == "" {
		projectID = session.NewProjectID()
	}
	ctx := cmd.Context()
	opened, err := a.container.Gate.Open(ctx, projectID, user)
	if err != nil {
		return err
	}
	ed, err := editor.Open(ctx, a.container.EditorDeps, opened, user)
	if err != nil {
		return err
	}
	defer ed.Close()
	defer di.FollowSavePolicy(a.container.Tunables, ed)()

	if err := fn(ed); err != nil {
		return err
	}
	return ed.Save(ctx)
}

func newPlanCmd(a *app) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "plan <idea>",
		Short: "Ask the AI service for a step-by-step plan and add it to a project",
		Long: `plan breaks an idea into steps and adds them as a chain of connected notes.
Without --project a new project is created and its id printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idea := strings.Join(args, " ")
			var added []entities.Node
			var id string
			err := withEditor(cmd, a, projectID, func(ed *editor.Editor) error {
				id = ed.ProjectID()
				var err error
				added, err = ed.AutoPlan(cmd.Context(), idea)
				return err
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			success(out, "added %d steps to %s", len(added), id)
			for i, n := range added {
				fmt.Fprintf(out, "  %s %s\n", subtle.Sprintf("%d.", i+1), n.Data.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project to add the plan to")
	cmd.AddCommand(newRunCmd(a))
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "run <node-id>",
		Short: "Run a generator node and store its answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project is required")
			}
			var node entities.Node
			err := withEditor(cmd, a, projectID, func(ed *editor.Editor) error {
				var err error
				node, err = ed.ExecuteGenerator(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), node.Data.Result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project holding the node")
	return cmd
}
