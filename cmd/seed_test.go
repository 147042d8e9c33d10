//go:build !integration

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3ad-solutions/intake/internal/config"
	"github.com/l3ad-solutions/intake/internal/model"
	"github.com/l3ad-solutions/intake/internal/store"
)

const seedFixture = `
projects:
  - slug: acme-plumbing
    client_name: Acme Plumbing
    business_type: Plumbing contractor
    location: Portland, OR
    social_urls:
      - https://www.facebook.com/acmeplumbing
    status: sent

proposals:
  - slug: acme-plumbing-proposal
    project_slug: acme-plumbing
    client_name: Acme Plumbing
    contact_name: Dana Whitfield
    industry: Home services
    status: published
    data:
      slides:
        - type: cover
          title: A new website for Acme Plumbing
`

func writeSeedFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	sf, err := loadSeedFile(writeSeedFixture(t, seedFixture))
	require.NoError(t, err)

	require.Len(t, sf.Projects, 1)
	assert.Equal(t, "acme-plumbing", sf.Projects[0].Slug)
	assert.Equal(t, "Acme Plumbing", sf.Projects[0].ClientName)
	assert.Equal(t, []string{"https://www.facebook.com/acmeplumbing"}, sf.Projects[0].SocialURLs)
	assert.Equal(t, "sent", sf.Projects[0].Status)

	require.Len(t, sf.Proposals, 1)
	assert.Equal(t, "acme-plumbing", sf.Proposals[0].ProjectSlug)
	assert.Equal(t, "published", sf.Proposals[0].Status)
	assert.Contains(t, sf.Proposals[0].Data, "slides")
}

func TestLoadSeedFile_MissingFile(t *testing.T) {
	_, err := loadSeedFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed: read")
}

func TestLoadSeedFile_BadYAML(t *testing.T) {
	_, err := loadSeedFile(writeSeedFixture(t, "projects: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed: parse")
}

func TestLoadSeedFile_ProjectMissingSlug(t *testing.T) {
	_, err := loadSeedFile(writeSeedFixture(t, "projects:\n  - client_name: No Slug\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing slug or client_name")
}

func TestLoadSeedFile_ProposalMissingProjectSlug(t *testing.T) {
	_, err := loadSeedFile(writeSeedFixture(t, "proposals:\n  - slug: orphan\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing slug or project_slug")
}

func TestSeedCmd_CreatesAndIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "seed_test.db")
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: dbPath,
		},
	}

	path := writeSeedFixture(t, seedFixture)
	require.NoError(t, seedCmd.Flags().Set("file", path))

	seedCmd.SetContext(context.Background())
	defer seedCmd.SetContext(nil)

	require.NoError(t, seedCmd.RunE(seedCmd, nil))
	// Running again skips existing rows instead of failing.
	require.NoError(t, seedCmd.RunE(seedCmd, nil))

	st, err := store.Open(context.Background(), "sqlite", dbPath, nil)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	p, err := st.GetProjectBySlug(context.Background(), "acme-plumbing")
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", p.ClientName)
	assert.Equal(t, model.ProjectSent, p.Status)

	pr, err := st.GetProposalBySlug(context.Background(), "acme-plumbing-proposal")
	require.NoError(t, err)
	assert.Equal(t, p.ID, pr.ProjectID)
	assert.Equal(t, model.ProposalPublished, pr.Status)
	assert.Contains(t, string(pr.ProposalData), "A new website for Acme Plumbing")

	projects, err := st.ListProjects(context.Background(), store.ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestSeedCmd_ProposalWithoutProjectFails(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "seed_test.db"),
		},
	}

	path := writeSeedFixture(t, "proposals:\n  - slug: orphan\n    project_slug: no-such-project\n")
	require.NoError(t, seedCmd.Flags().Set("file", path))

	seedCmd.SetContext(context.Background())
	defer seedCmd.SetContext(nil)

	err := seedCmd.RunE(seedCmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Contains(t, err.Error(), "no-such-project")
}
