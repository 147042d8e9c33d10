package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/l3ad-solutions/intake/internal/model"
	"github.com/l3ad-solutions/intake/internal/store"
)

// seedFile is the on-disk fixture format consumed by the seed command.
// Proposals reference their project by slug; the project must appear in
// the same file or already exist in the store.
type seedFile struct {
	Projects  []seedProject  `yaml:"projects"`
	Proposals []seedProposal `yaml:"proposals"`
}

type seedProject struct {
	Slug         string   `yaml:"slug"`
	ClientName   string   `yaml:"client_name"`
	BusinessType string   `yaml:"business_type"`
	Location     string   `yaml:"location"`
	SourceURL    string   `yaml:"source_url"`
	SocialURLs   []string `yaml:"social_urls"`
	Notes        string   `yaml:"notes"`
	Status       string   `yaml:"status"`
}

type seedProposal struct {
	Slug        string         `yaml:"slug"`
	ProjectSlug string         `yaml:"project_slug"`
	ClientName  string         `yaml:"client_name"`
	ContactName string         `yaml:"contact_name"`
	Industry    string         `yaml:"industry"`
	Status      string         `yaml:"status"`
	Data        map[string]any `yaml:"data"`
}

func loadSeedFile(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, eris.Wrapf(err, "seed: parse %s", path)
	}
	for i, p := range sf.Projects {
		if p.Slug == "" || p.ClientName == "" {
			return nil, eris.Errorf("seed: project %d missing slug or client_name", i)
		}
	}
	for i, pr := range sf.Proposals {
		if pr.Slug == "" || pr.ProjectSlug == "" {
			return nil, eris.Errorf("seed: proposal %d missing slug or project_slug", i)
		}
	}
	return &sf, nil
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo projects and proposals from a YAML fixture",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")

		sf, err := loadSeedFile(path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		log := zap.L()
		for _, sp := range sf.Projects {
			if _, err := st.GetProjectBySlug(ctx, sp.Slug); err == nil {
				log.Info("seed: project exists, skipping", zap.String("slug", sp.Slug))
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				return eris.Wrapf(err, "seed: check project %s", sp.Slug)
			}

			status := model.ProjectStatus(sp.Status)
			if status == "" {
				status = model.ProjectDraft
			}
			_, err := st.CreateProject(ctx, &model.Project{
				Slug:         sp.Slug,
				ClientName:   sp.ClientName,
				BusinessType: sp.BusinessType,
				Location:     sp.Location,
				SourceURL:    sp.SourceURL,
				SocialURLs:   sp.SocialURLs,
				Notes:        sp.Notes,
				Status:       status,
			})
			if err != nil {
				return eris.Wrapf(err, "seed: create project %s", sp.Slug)
			}
			log.Info("seed: project created", zap.String("slug", sp.Slug))
		}

		for _, spr := range sf.Proposals {
			if _, err := st.GetProposalBySlug(ctx, spr.Slug); err == nil {
				log.Info("seed: proposal exists, skipping", zap.String("slug", spr.Slug))
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				return eris.Wrapf(err, "seed: check proposal %s", spr.Slug)
			}

			project, err := st.GetProjectBySlug(ctx, spr.ProjectSlug)
			if err != nil {
				return eris.Wrapf(err, "seed: proposal %s references project %s", spr.Slug, spr.ProjectSlug)
			}

			data, err := json.Marshal(spr.Data)
			if err != nil {
				return eris.Wrapf(err, "seed: marshal proposal %s data", spr.Slug)
			}

			status := model.ProposalStatus(spr.Status)
			if status == "" {
				status = model.ProposalDraft
			}
			_, err = st.CreateProposal(ctx, &model.Proposal{
				Slug:         spr.Slug,
				ProjectID:    project.ID,
				ClientName:   spr.ClientName,
				ContactName:  spr.ContactName,
				Industry:     spr.Industry,
				ProposalData: data,
				Status:       status,
			})
			if err != nil {
				return eris.Wrapf(err, "seed: create proposal %s", spr.Slug)
			}
			log.Info("seed: proposal created", zap.String("slug", spr.Slug))
		}

		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "seed.yaml", "path to the seed fixture")
	rootCmd.AddCommand(seedCmd)
}
