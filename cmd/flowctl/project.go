package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Jovicsi/flowminds.ai/application/session"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect and share projects",
	}
	cmd.AddCommand(newProjectListCmd(a), newProjectShowCmd(a), newProjectShareCmd(a))
	return cmd
}

func newProjectListCmd(a *app) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects you own or were invited to",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			summaries, err := a.container.Gate.ListProjects(cmd.Context(), user, query)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					s.ID, s.Name, s.Role.String(), strconv.Itoa(s.NodeCount),
					s.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			out := cmd.OutOrStdout()
			brand.Fprintln(out, "Projects")
			table(out, []string{"ID", "NAME", "ROLE", "NODES", "UPDATED"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only show projects whose name contains this text")
	return cmd
}

func newProjectShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Print a project's nodes and connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			opened, err := a.container.Gate.Open(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			printProject(cmd, opened)
			return nil
		},
	}
}

func printProject(cmd *cobra.Command, opened *session.Opened) {
	out := cmd.OutOrStdout()
	p := opened.Project
	brand.Fprintf(out, "%s ", p.Name)
	subtle.Fprintf(out, "(%s, %s)\n", p.ID, opened.Role)
	if !opened.Exists {
		subtle.Fprintln(out, "  not saved yet")
		return
	}

	titles := make(map[string]string, len(p.Nodes))
	rows := make([][]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		titles[n.ID] = n.Data.Title
		rows = append(rows, []string{n.ID, string(n.Type), n.Data.Title, summarize(n)})
	}
	fmt.Fprintln(out)
	info.Fprintln(out, "Nodes")
	table(out, []string{"ID", "TYPE", "TITLE", "CONTENT"}, rows)

	rows = rows[:0]
	for _, e := range p.Edges {
		rows = append(rows, []string{e.ID, titles[e.Source] + " → " + titles[e.Target]})
	}
	fmt.Fprintln(out)
	info.Fprintln(out, "Connections")
	table(out, []string{"ID", "FLOW"}, rows)
}

const previewLen = 40

func summarize(n entities.Node) string {
	text := n.Data.Content
	switch {
	case n.Type == entities.NodeTypeImage:
		text = n.Data.ImageURL
	case n.Data.IsProcessing:
		text = "(generating)"
	case n.Data.Result != "":
		text = n.Data.Result
	}
	r := []rune(text)
	if len(r) > previewLen {
		return string(r[:previewLen-1]) + "…"
	}
	return text
}

func newProjectShareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "share <project-id>",
		Short:       "Print the link collaborators open to join a project",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := session.ShareLink(a.baseURL, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
}
