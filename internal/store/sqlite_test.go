package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3ad-solutions/intake/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createTestProject(t *testing.T, st *SQLiteStore) *model.Project {
	t.Helper()
	p, err := st.CreateProject(context.Background(), &model.Project{
		Slug:         "acme-plumbing",
		ClientName:   "Acme Plumbing",
		BusinessType: "plumber",
		Location:     "Springfield, IL",
		SocialURLs:   []string{"https://www.facebook.com/acme"},
		SourceURL:    "https://acmeplumbing.com",
	})
	require.NoError(t, err)
	return p
}

func TestSQLite_Project_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created := createTestProject(t, st)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.ProjectDraft, created.Status)

	got, err := st.GetProject(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", got.ClientName)
	assert.Equal(t, []string{"https://www.facebook.com/acme"}, got.SocialURLs)
	assert.Nil(t, got.Analysis)

	bySlug, err := st.GetProjectBySlug(ctx, "acme-plumbing")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)
}

func TestSQLite_Project_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetProject(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = st.GetProjectBySlug(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.UpdateProject(ctx, &model.Project{ID: "missing", Status: model.ProjectDraft})
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.DeleteProject(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Project_UpdateAndDelete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := createTestProject(t, st)
	p.Status = model.ProjectSent
	p.Notes = "sent intake link"
	require.NoError(t, st.UpdateProject(ctx, p))

	got, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectSent, got.Status)
	assert.Equal(t, "sent intake link", got.Notes)

	require.NoError(t, st.DeleteProject(ctx, p.ID))
	_, err = st.GetProject(ctx, p.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Project_ListFilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p1 := createTestProject(t, st)
	_, err := st.CreateProject(ctx, &model.Project{
		Slug:       "other-client",
		ClientName: "Other Client",
		Status:     model.ProjectSent,
	})
	require.NoError(t, err)

	all, err := st.ListProjects(ctx, ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	drafts, err := st.ListProjects(ctx, ProjectFilter{Status: model.ProjectDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, p1.ID, drafts[0].ID)
}

func testAnalysis() *model.BusinessAnalysis {
	return &model.BusinessAnalysis{
		BusinessName: "Acme Plumbing",
		BusinessType: "plumber",
		Location:     "Springfield, IL",
		DiscoveredSocialURLs: []model.SocialLink{
			{Platform: "Facebook", URL: "https://www.facebook.com/acme"},
			{Platform: "Yelp", URL: "https://www.yelp.com/biz/acme-plumbing"},
		},
		Prefill: model.Prefill{
			YourStory: model.PrefillStory{HowStarted: "Family business since 2005"},
			Services:  model.PrefillServices{MainServices: []string{"drain cleaning"}},
		},
	}
}

func TestSQLite_SaveAnalysis_MergesSocialURLs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := createTestProject(t, st)
	require.NoError(t, st.SaveAnalysis(ctx, p.ID, testAnalysis()))

	got, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.facebook.com/acme",
		"https://www.yelp.com/biz/acme-plumbing",
	}, got.SocialURLs)

	var saved model.BusinessAnalysis
	require.NoError(t, json.Unmarshal(got.Analysis, &saved))
	assert.Equal(t, "Acme Plumbing", saved.BusinessName)
}

func TestSQLite_SaveAnalysis_PrefillsEmptyIntake(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := createTestProject(t, st)
	require.NoError(t, st.SaveAnalysis(ctx, p.ID, testAnalysis()))

	intake, err := st.GetIntake(ctx, p.ID)
	require.NoError(t, err)

	var responses map[string]map[string]any
	require.NoError(t, json.Unmarshal(intake.Responses, &responses))
	assert.Equal(t, "Family business since 2005", responses["your_story"]["how_started"])
}

func TestSQLite_SaveAnalysis_DoesNotClobberAnswers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := createTestProject(t, st)
	_, err := st.SaveIntake(ctx, &model.IntakeResponse{
		ProjectID:   p.ID,
		Responses:   []byte(`{"your_story":{"how_started":"typed by the client"}}`),
		CurrentStep: 1,
	})
	require.NoError(t, err)

	require.NoError(t, st.SaveAnalysis(ctx, p.ID, testAnalysis()))

	intake, err := st.GetIntake(ctx, p.ID)
	require.NoError(t, err)
	var responses map[string]map[string]any
	require.NoError(t, json.Unmarshal(intake.Responses, &responses))
	assert.Equal(t, "typed by the client", responses["your_story"]["how_started"])
}

func TestSQLite_SaveAnalysis_BusyProject(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := createTestProject(t, st)
	release, err := st.acquireAnalysis(p.ID)
	require.NoError(t, err)
	defer release()

	err = st.SaveAnalysis(ctx, p.ID, testAnalysis())
	assert.True(t, errors.Is(err, ErrAnalysisInProgress))
}

func TestSQLite_SaveAnalysis_ProjectMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.SaveAnalysis(context.Background(), "missing", testAnalysis())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_SaveIntake_UpsertKeepsOriginalStart(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := createTestProject(t, st)
	first, err := st.SaveIntake(ctx, &model.IntakeResponse{
		ProjectID:   p.ID,
		Responses:   []byte(`{"services":{"specialty":"drains"}}`),
		CurrentStep: 1,
	})
	require.NoError(t, err)

	second, err := st.SaveIntake(ctx, &model.IntakeResponse{
		ProjectID:   p.ID,
		Responses:   []byte(`{"services":{"specialty":"drains"},"goals":{"primary_goal":"more calls"}}`),
		CurrentStep: 6,
		Completed:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.StartedAt, second.StartedAt)
	assert.Equal(t, 6, second.CurrentStep)
	assert.True(t, second.Completed)
	require.NotNil(t, second.CompletedAt)
}

func TestSQLite_Proposal_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := createTestProject(t, st)
	created, err := st.CreateProposal(ctx, &model.Proposal{
		Slug:       "acme-proposal",
		ProjectID:  p.ID,
		ClientName: "Acme Plumbing",
		Industry:   "plumbing",
		ProposalData: []byte(`{"slides":[{"title":"Overview"}]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProposalDraft, created.Status)

	created.Status = model.ProposalPublished
	require.NoError(t, st.UpdateProposal(ctx, created))

	got, err := st.GetProposalBySlug(ctx, "acme-proposal")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalPublished, got.Status)
	assert.JSONEq(t, `{"slides":[{"title":"Overview"}]}`, string(got.ProposalData))

	list, err := st.ListProposals(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = st.GetProposalBySlug(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
