package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/l3ad-solutions/intake/internal/agent"
	"github.com/l3ad-solutions/intake/internal/model"
)

var analyzeURL string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [project-slug]",
	Short: "Run the AI analysis pipeline for a project or an ad-hoc URL",
	Long:  "Analyzes a project's web presence and stores the result. With --url, runs the pipeline against a single site and prints the analysis without persisting anything.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		analyzer := initAnalyzer()

		// Ad-hoc run: analyze a URL directly, print, done.
		if analyzeURL != "" {
			analysis, err := analyzer.AnalyzeFromURL(ctx, analyzeURL, "")
			if err != nil {
				return eris.Wrap(err, "analyze url")
			}
			return printJSON(analysis)
		}

		if len(args) == 0 {
			return eris.New("analyze: provide a project slug or --url")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProjectBySlug(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "load project %s", args[0])
		}

		var analysis *model.BusinessAnalysis
		if p.SourceURL != "" {
			analysis, err = analyzer.AnalyzeFromURL(ctx, p.SourceURL, p.Notes)
		} else {
			links := make([]model.SocialLink, 0, len(p.SocialURLs))
			for _, u := range p.SocialURLs {
				links = append(links, model.SocialLink{Platform: agent.PlatformFor(u), URL: u})
			}
			analysis, err = analyzer.AnalyzeBusinessLinks(ctx, p.ClientName, p.BusinessType, p.Location, links)
		}
		if err != nil {
			return eris.Wrapf(err, "analyze project %s", p.Slug)
		}

		if err := st.SaveAnalysis(ctx, p.ID, analysis); err != nil {
			return eris.Wrapf(err, "save analysis %s", p.Slug)
		}
		zap.L().Info("analysis saved",
			zap.String("project", p.Slug),
			zap.String("business_name", analysis.BusinessName),
		)
		return printJSON(analysis)
	},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeURL, "url", "", "analyze a URL directly without a project")
	rootCmd.AddCommand(analyzeCmd)
}
