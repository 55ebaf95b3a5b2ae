package main

import (
	"github.com/spf13/cobra"

	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

func newMembersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage who can open a project",
	}
	cmd.AddCommand(
		newMembersListCmd(a),
		newMembersInviteCmd(a),
		newMembersRoleCmd(a),
		newMembersRemoveCmd(a),
	)
	return cmd
}

func newMembersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			members, err := a.container.Gate.ListMembers(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(members))
			for _, m := range members {
				rows = append(rows, []string{m.ID, m.UserEmail, m.Role.String()})
			}
			table(cmd.OutOrStdout(), []string{"ID", "EMAIL", "ROLE"}, rows)
			return nil
		},
	}
}

func newMembersInviteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invite <project-id> <email>",
		Short: "Invite someone as a viewer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			m, err := a.container.Gate.Invite(cmd.Context(), args[0], user, args[1])
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "invited %s as %s (%s)", m.UserEmail, m.Role, m.ID)
			return nil
		},
	}
}

func newMembersRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "role <project-id> <member-id> <editor|viewer>",
		Short: "Change a member's role",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			role, err := valueobjects.ParseRole(args[2])
			if err != nil {
				return err
			}
			if err := a.container.Gate.ChangeRole(cmd.Context(), args[0], user, args[1], role); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "%s is now %s", args[1], role)
			return nil
		},
	}
}

func newMembersRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <project-id> <member-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a member",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			if err := a.container.Gate.RemoveMember(cmd.Context(), args[0], user, args[1]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "removed %s", args[1])
			return nil
		},
	}
}
