package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/l3ad-solutions/intake/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. SQLite has no
// advisory locks, so SaveAnalysis exclusivity is enforced in-process with
// a per-project busy set; the local driver is single-process anyway.
type SQLiteStore struct {
	db *sql.DB

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, busy: make(map[string]struct{})}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id            TEXT PRIMARY KEY,
	slug          TEXT NOT NULL UNIQUE,
	client_name   TEXT NOT NULL,
	business_type TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	social_urls   TEXT NOT NULL DEFAULT '[]',
	notes         TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'draft',
	ai_analysis   TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_projects_slug ON projects(slug);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);

CREATE TABLE IF NOT EXISTS intake_responses (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
	responses    TEXT NOT NULL DEFAULT '{}',
	current_step INTEGER NOT NULL DEFAULT 0,
	completed    BOOLEAN NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_intake_responses_project_id ON intake_responses(project_id);

CREATE TABLE IF NOT EXISTS proposals (
	id            TEXT PRIMARY KEY,
	slug          TEXT NOT NULL UNIQUE,
	project_id    TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	client_name   TEXT NOT NULL,
	contact_name  TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT '',
	proposal_data TEXT NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_proposals_slug ON proposals(slug);
CREATE INDEX IF NOT EXISTS idx_proposals_project_id ON proposals(project_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProjectSQLite(row rowScanner) (*model.Project, error) {
	var p model.Project
	var socialJSON string
	var analysisNull sql.NullString

	err := row.Scan(&p.ID, &p.Slug, &p.ClientName, &p.BusinessType, &p.Location,
		&socialJSON, &p.Notes, &p.SourceURL, &p.Status, &analysisNull,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if socialJSON != "" {
		if err := json.Unmarshal([]byte(socialJSON), &p.SocialURLs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal social urls")
		}
	}
	if analysisNull.Valid {
		p.Analysis = json.RawMessage(analysisNull.String)
	}
	return &p, nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *model.Project) (*model.Project, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal social urls")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, slug, client_name, business_type, location, social_urls, notes, source_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Slug, out.ClientName, out.BusinessType, out.Location,
		string(socialJSON), out.Notes, out.SourceURL, string(out.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert project")
	}
	return &out, nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *model.Project) error {
	socialJSON, err := json.Marshal(p.SocialURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal social urls")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET client_name = ?, business_type = ?, location = ?, social_urls = ?,
		 notes = ?, source_url = ?, status = ?, updated_at = ? WHERE id = ?`,
		p.ClientName, p.BusinessType, p.Location, string(socialJSON),
		p.Notes, p.SourceURL, string(p.Status), time.Now().UTC(), p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update project %s", p.ID)
	}
	return checkRowsAffected(res, "project", p.ID)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete project %s", id)
	}
	return checkRowsAffected(res, "project", id)
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := scanProjectSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) GetProjectBySlug(ctx context.Context, slug string) (*model.Project, error) {
	p, err := scanProjectSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project by slug %s", slug)
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE true`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close() //nolint:errcheck

	var projects []model.Project
	for rows.Next() {
		p, err := scanProjectSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project")
		}
		projects = append(projects, *p)
	}
	return projects, eris.Wrap(rows.Err(), "sqlite: list projects iterate")
}

// acquireAnalysis marks a project as being analyzed. The release function
// must be called exactly once.
func (s *SQLiteStore) acquireAnalysis(projectID string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, inProgress := s.busy[projectID]; inProgress {
		return nil, ErrAnalysisInProgress
	}
	s.busy[projectID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.busy, projectID)
		s.mu.Unlock()
	}, nil
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, projectID string, analysis *model.BusinessAnalysis) error {
	release, err := s.acquireAnalysis(projectID)
	if err != nil {
		return err
	}
	defer release()

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save analysis")
	}
	defer tx.Rollback() //nolint:errcheck

	var socialJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT social_urls FROM projects WHERE id = ?`, projectID,
	).Scan(&socialJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: load project %s", projectID)
	}

	var socials []string
	if socialJSON != "" {
		if err := json.Unmarshal([]byte(socialJSON), &socials); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal social urls")
		}
	}
	mergedJSON, err := json.Marshal(mergeSocialURLs(socials, analysis.DiscoveredSocialURLs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal merged social urls")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET ai_analysis = ?, social_urls = ?, updated_at = ? WHERE id = ?`,
		string(analysisJSON), string(mergedJSON), time.Now().UTC(), projectID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: save analysis %s", projectID)
	}

	// Prefill only while the client has not typed anything yet.
	prefillJSON, err := prefillResponses(analysis.Prefill)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO intake_responses (id, project_id, responses, current_step, completed, started_at)
		 VALUES (?, ?, ?, 0, 0, ?)
		 ON CONFLICT(project_id) DO UPDATE SET responses = excluded.responses
		 WHERE intake_responses.responses = '{}' OR intake_responses.responses IS NULL`,
		uuid.New().String(), projectID, string(prefillJSON), time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "sqlite: prefill intake %s", projectID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save analysis")
}

func (s *SQLiteStore) GetIntake(ctx context.Context, projectID string) (*model.IntakeResponse, error) {
	var r model.IntakeResponse
	var responsesJSON string
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, responses, current_step, completed, started_at, completed_at
		 FROM intake_responses WHERE project_id = ?`,
		projectID,
	).Scan(&r.ID, &r.ProjectID, &responsesJSON, &r.CurrentStep, &r.Completed, &r.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get intake %s", projectID)
	}
	r.Responses = json.RawMessage(responsesJSON)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (s *SQLiteStore) SaveIntake(ctx context.Context, r *model.IntakeResponse) (*model.IntakeResponse, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO intake_responses (id, project_id, responses, current_step, completed, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
		   responses = excluded.responses, current_step = excluded.current_step,
		   completed = excluded.completed, completed_at = excluded.completed_at`,
		out.ID, out.ProjectID, string(responses), out.CurrentStep, out.Completed, out.StartedAt, out.CompletedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: save intake %s", out.ProjectID)
	}
	// Re-read so the row's original id and started_at survive an upsert.
	return s.GetIntake(ctx, out.ProjectID)
}

func (s *SQLiteStore) CreateProposal(ctx context.Context, p *model.Proposal) (*model.Proposal, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposals (id, slug, project_id, client_name, contact_name, industry, proposal_data, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Slug, out.ProjectID, out.ClientName, out.ContactName,
		out.Industry, string(data), string(out.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert proposal")
	}
	return &out, nil
}

func (s *SQLiteStore) UpdateProposal(ctx context.Context, p *model.Proposal) error {
	data := p.ProposalData
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET client_name = ?, contact_name = ?, industry = ?,
		 proposal_data = ?, status = ?, updated_at = ? WHERE id = ?`,
		p.ClientName, p.ContactName, p.Industry, string(data), string(p.Status),
		time.Now().UTC(), p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update proposal %s", p.ID)
	}
	return checkRowsAffected(res, "proposal", p.ID)
}

func (s *SQLiteStore) GetProposalBySlug(ctx context.Context, slug string) (*model.Proposal, error) {
	var p model.Proposal
	var dataJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, project_id, client_name, contact_name, industry, proposal_data, status, created_at, updated_at
		 FROM proposals WHERE slug = ?`,
		slug,
	).Scan(&p.ID, &p.Slug, &p.ProjectID, &p.ClientName, &p.ContactName,
		&p.Industry, &dataJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get proposal by slug %s", slug)
	}
	p.ProposalData = json.RawMessage(dataJSON)
	return &p, nil
}

func (s *SQLiteStore) ListProposals(ctx context.Context, projectID string) ([]model.Proposal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slug, project_id, client_name, contact_name, industry, proposal_data, status, created_at, updated_at
		 FROM proposals WHERE project_id = ? ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list proposals")
	}
	defer rows.Close() //nolint:errcheck

	var proposals []model.Proposal
	for rows.Next() {
		var p model.Proposal
		var dataJSON string
		if err := rows.Scan(&p.ID, &p.Slug, &p.ProjectID, &p.ClientName, &p.ContactName,
			&p.Industry, &dataJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan proposal")
		}
		p.ProposalData = json.RawMessage(dataJSON)
		proposals = append(proposals, p)
	}
	return proposals, eris.Wrap(rows.Err(), "sqlite: list proposals iterate")
}
