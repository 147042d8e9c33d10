package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/l3ad-solutions/intake/internal/model"
	"github.com/l3ad-solutions/intake/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_project":          `SELECT id, slug, client_name, business_type, location, social_urls, notes, source_url, status, ai_analysis, created_at, updated_at FROM projects WHERE id = $1`,
	"get_project_by_slug":  `SELECT id, slug, client_name, business_type, location, social_urls, notes, source_url, status, ai_analysis, created_at, updated_at FROM projects WHERE slug = $1`,
	"get_intake":           `SELECT id, project_id, responses, current_step, completed, started_at, completed_at FROM intake_responses WHERE project_id = $1`,
	"get_proposal_by_slug": `SELECT id, slug, project_id, client_name, contact_name, industry, proposal_data, status, created_at, updated_at FROM proposals WHERE slug = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	// The database may still be starting when the process comes up, so the
	// initial ping retries on transient connection errors.
	pingCfg := resilience.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		OnRetry:        resilience.RetryLogger("postgres", "ping"),
	}
	if err := resilience.Do(ctx, pingCfg, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug          TEXT NOT NULL UNIQUE,
	client_name   TEXT NOT NULL,
	business_type TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	social_urls   JSONB NOT NULL DEFAULT '[]',
	notes         TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'draft',
	ai_analysis   JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_projects_slug ON projects(slug);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);

CREATE TABLE IF NOT EXISTS intake_responses (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id   TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
	responses    JSONB NOT NULL DEFAULT '{}',
	current_step INTEGER NOT NULL DEFAULT 0,
	completed    BOOLEAN NOT NULL DEFAULT false,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_intake_responses_project_id ON intake_responses(project_id);

CREATE TABLE IF NOT EXISTS proposals (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug          TEXT NOT NULL UNIQUE,
	project_id    TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	client_name   TEXT NOT NULL,
	contact_name  TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT '',
	proposal_data JSONB NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_proposals_slug ON proposals(slug);
CREATE INDEX IF NOT EXISTS idx_proposals_project_id ON proposals(project_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const projectColumns = `id, slug, client_name, business_type, location, social_urls, notes, source_url, status, ai_analysis, created_at, updated_at`

// scanProject reads one project row. Works with both pgx.Row and pgx.Rows.
func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	var socialJSON []byte
	var analysisNull *[]byte

	err := row.Scan(&p.ID, &p.Slug, &p.ClientName, &p.BusinessType, &p.Location,
		&socialJSON, &p.Notes, &p.SourceURL, &p.Status, &analysisNull,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(socialJSON) > 0 {
		if err := json.Unmarshal(socialJSON, &p.SocialURLs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal social urls")
		}
	}
	if analysisNull != nil {
		p.Analysis = json.RawMessage(*analysisNull)
	}
	return &p, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *model.Project) (*model.Project, error) {
	out := *p
	out.ID = uuid.New().String()
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now
	if out.Status == "" {
		out.Status = model.ProjectDraft
	}
	if out.SocialURLs == nil {
		out.SocialURLs = []string{}
	}

	socialJSON, err := json.Marshal(out.SocialURLs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal social urls")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, slug, client_name, business_type, location, social_urls, notes, source_url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		out.ID, out.Slug, out.ClientName, out.BusinessType, out.Location,
		socialJSON, out.Notes, out.SourceURL, string(out.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert project")
	}
	return &out, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p *model.Project) error {
	socialJSON, err := json.Marshal(p.SocialURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal social urls")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET client_name = $1, business_type = $2, location = $3, social_urls = $4,
		 notes = $5, source_url = $6, status = $7, updated_at = $8 WHERE id = $9`,
		p.ClientName, p.BusinessType, p.Location, socialJSON,
		p.Notes, p.SourceURL, string(p.Status), time.Now().UTC(), p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update project %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete project %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project %s", id)
	}
	return p, nil
}

func (s *PostgresStore) GetProjectBySlug(ctx context.Context, slug string) (*model.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project by slug %s", slug)
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		projects = append(projects, *p)
	}
	return projects, eris.Wrap(rows.Err(), "postgres: list projects iterate")
}

// SaveAnalysis runs inside a transaction holding a per-project advisory
// lock, so two analyze requests for the same project cannot interleave.
// The second caller gets ErrAnalysisInProgress immediately instead of
// queueing behind a multi-minute pipeline run.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, projectID string, analysis *model.BusinessAnalysis) error {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save analysis")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var locked bool
	if err := tx.QueryRow(ctx,
		`SELECT pg_try_advisory_xact_lock(hashtext($1))`, projectID,
	).Scan(&locked); err != nil {
		return eris.Wrap(err, "postgres: acquire analysis lock")
	}
	if !locked {
		return ErrAnalysisInProgress
	}

	var socialJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT social_urls FROM projects WHERE id = $1`, projectID,
	).Scan(&socialJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: load project %s", projectID)
	}

	var socials []string
	if len(socialJSON) > 0 {
		if err := json.Unmarshal(socialJSON, &socials); err != nil {
			return eris.Wrap(err, "postgres: unmarshal social urls")
		}
	}
	mergedJSON, err := json.Marshal(mergeSocialURLs(socials, analysis.DiscoveredSocialURLs))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal merged social urls")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE projects SET ai_analysis = $1, social_urls = $2, updated_at = $3 WHERE id = $4`,
		analysisJSON, mergedJSON, time.Now().UTC(), projectID,
	); err != nil {
		return eris.Wrapf(err, "postgres: save analysis %s", projectID)
	}

	// Prefill only while the client has not typed anything yet. A re-run
	// of the pipeline must never clobber real answers.
	prefillJSON, err := prefillResponses(analysis.Prefill)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO intake_responses (id, project_id, responses, current_step, completed, started_at)
		 VALUES ($1, $2, $3, 0, false, $4)
		 ON CONFLICT (project_id) DO UPDATE SET responses = EXCLUDED.responses
		 WHERE intake_responses.responses = '{}'::jsonb OR intake_responses.responses IS NULL`,
		uuid.New().String(), projectID, prefillJSON, time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "postgres: prefill intake %s", projectID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save analysis")
}

func (s *PostgresStore) GetIntake(ctx context.Context, projectID string) (*model.IntakeResponse, error) {
	var r model.IntakeResponse
	var responsesJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, responses, current_step, completed, started_at, completed_at
		 FROM intake_responses WHERE project_id = $1`,
		projectID,
	).Scan(&r.ID, &r.ProjectID, &responsesJSON, &r.CurrentStep, &r.Completed, &r.StartedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get intake %s", projectID)
	}
	r.Responses = json.RawMessage(responsesJSON)
	return &r, nil
}

func (s *PostgresStore) SaveIntake(ctx context.Context, r *model.IntakeResponse) (*model.IntakeResponse, error) {
	out := *r
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if out.StartedAt.IsZero() {
		out.StartedAt = now
	}
	if out.Completed && out.CompletedAt == nil {
		out.CompletedAt = &now
	}
	responses := out.Responses
	if len(responses) == 0 {
		responses = json.RawMessage(`{}`)
	}

	// The row keeps its original id and started_at on conflict.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO intake_responses (id, project_id, responses, current_step, completed, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (project_id) DO UPDATE SET
		   responses = $3, current_step = $4, completed = $5, completed_at = $7
		 RETURNING id, started_at`,
		out.ID, out.ProjectID, []byte(responses), out.CurrentStep, out.Completed, out.StartedAt, out.CompletedAt,
	).Scan(&out.ID, &out.StartedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save intake %s", out.ProjectID)
	}
	return &out, nil
}

func (s *PostgresStore) CreateProposal(ctx context.Context, p *model.Proposal) (*model.Proposal, error) {
	out := *p
	out.ID = uuid.New().String()
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now
	if out.Status == "" {
		out.Status = model.ProposalDraft
	}
	data := out.ProposalData
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO proposals (id, slug, project_id, client_name, contact_name, industry, proposal_data, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		out.ID, out.Slug, out.ProjectID, out.ClientName, out.ContactName,
		out.Industry, []byte(data), string(out.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert proposal")
	}
	return &out, nil
}

func (s *PostgresStore) UpdateProposal(ctx context.Context, p *model.Proposal) error {
	data := p.ProposalData
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE proposals SET client_name = $1, contact_name = $2, industry = $3,
		 proposal_data = $4, status = $5, updated_at = $6 WHERE id = $7`,
		p.ClientName, p.ContactName, p.Industry, []byte(data), string(p.Status),
		time.Now().UTC(), p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update proposal %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetProposalBySlug(ctx context.Context, slug string) (*model.Proposal, error) {
	var p model.Proposal
	var dataJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, slug, project_id, client_name, contact_name, industry, proposal_data, status, created_at, updated_at
		 FROM proposals WHERE slug = $1`,
		slug,
	).Scan(&p.ID, &p.Slug, &p.ProjectID, &p.ClientName, &p.ContactName,
		&p.Industry, &dataJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get proposal by slug %s", slug)
	}
	p.ProposalData = json.RawMessage(dataJSON)
	return &p, nil
}

func (s *PostgresStore) ListProposals(ctx context.Context, projectID string) ([]model.Proposal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, slug, project_id, client_name, contact_name, industry, proposal_data, status, created_at, updated_at
		 FROM proposals WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list proposals")
	}
	defer rows.Close()

	var proposals []model.Proposal
	for rows.Next() {
		var p model.Proposal
		var dataJSON []byte
		if err := rows.Scan(&p.ID, &p.Slug, &p.ProjectID, &p.ClientName, &p.ContactName,
			&p.Industry, &dataJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan proposal")
		}
		p.ProposalData = json.RawMessage(dataJSON)
		proposals = append(proposals, p)
	}
	return proposals, eris.Wrap(rows.Err(), "postgres: list proposals iterate")
}
