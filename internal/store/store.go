// Package store persists projects, intake responses, and proposals.
// Two drivers share the Store interface: Postgres (pgxpool) for
// deployments and SQLite for local development.
package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/l3ad-solutions/intake/internal/model"
)

// ErrNotFound is returned when a project, intake, or proposal does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrAnalysisInProgress is returned by SaveAnalysis when another analysis
// run holds the per-project lock. Callers surface it as a busy condition
// rather than a failure.
var ErrAnalysisInProgress = eris.New("store: analysis already in progress")

// Pool is the subset of pgxpool.Pool the Postgres store uses. pgxmock
// satisfies it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// ProjectFilter specifies criteria for listing projects.
type ProjectFilter struct {
	Status model.ProjectStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the intake application.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *model.Project) (*model.Project, error)
	UpdateProject(ctx context.Context, p *model.Project) error
	DeleteProject(ctx context.Context, id string) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*model.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]model.Project, error)

	// SaveAnalysis persists the analysis on its project, merges any
	// discovered social URLs into the project's social_urls (deduped by
	// URL), and prefills the project's intake responses when they are
	// still empty. At most one SaveAnalysis per project runs at a time;
	// a second concurrent call gets ErrAnalysisInProgress.
	SaveAnalysis(ctx context.Context, projectID string, analysis *model.BusinessAnalysis) error

	// Intake responses
	GetIntake(ctx context.Context, projectID string) (*model.IntakeResponse, error)
	SaveIntake(ctx context.Context, r *model.IntakeResponse) (*model.IntakeResponse, error)

	// Proposals
	CreateProposal(ctx context.Context, p *model.Proposal) (*model.Proposal, error)
	UpdateProposal(ctx context.Context, p *model.Proposal) error
	GetProposalBySlug(ctx context.Context, slug string) (*model.Proposal, error)
	ListProposals(ctx context.Context, projectID string) ([]model.Proposal, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open selects a driver from config values. Driver is "postgres" or "sqlite".
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// mergeSocialURLs appends discovered links to the project's existing URLs,
// skipping duplicates. Existing entries keep their position.
func mergeSocialURLs(existing []string, discovered []model.SocialLink) []string {
	seen := make(map[string]bool, len(existing))
	merged := make([]string, 0, len(existing)+len(discovered))
	for _, u := range existing {
		if seen[u] {
			continue
		}
		seen[u] = true
		merged = append(merged, u)
	}
	for _, l := range discovered {
		if seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		merged = append(merged, l.URL)
	}
	return merged
}

// prefillResponses builds the intake responses object seeded from an
// analysis prefill. Only sections the prefill carries are included, so a
// blank section stays blank in the form.
func prefillResponses(p model.Prefill) ([]byte, error) {
	responses := map[string]any{
		"your_story":     p.YourStory,
		"services":       p.Services,
		"your_customers": p.YourCustomers,
	}
	if p.ContentMedia != nil {
		responses["content_media"] = p.ContentMedia
	}
	if p.Goals != nil {
		responses["goals"] = p.Goals
	}
	out, err := json.Marshal(responses)
	return out, eris.Wrap(err, "store: marshal prefill responses")
}
