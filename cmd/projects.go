package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/l3ad-solutions/intake/internal/model"
	"github.com/l3ad-solutions/intake/internal/store"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Inspect client projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		projects, err := st.ListProjects(ctx, store.ProjectFilter{
			Status: model.ProjectStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "projects list")
		}

		if len(projects) == 0 {
			fmt.Fprintln(os.Stderr, "No projects found.")
			return nil
		}

		formatProjectsList(os.Stdout, projects)
		return nil
	},
}

var projectsShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show one project, including its analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProjectBySlug(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "projects show %s", args[0])
		}
		return printJSON(p)
	},
}

func formatProjectsList(w io.Writer, projects []model.Project) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tCLIENT\tSTATUS\tANALYZED\tCREATED")
	for _, p := range projects {
		analyzed := "no"
		if len(p.Analysis) > 0 {
			analyzed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.Slug, p.ClientName, p.Status, analyzed,
			p.CreatedAt.Format("2006-01-02"))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	projectsListCmd.Flags().String("status", "", "filter by status (draft, sent, in_progress, completed)")
	projectsListCmd.Flags().Int("limit", 50, "maximum projects to list")
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsShowCmd)
	rootCmd.AddCommand(projectsCmd)
}
