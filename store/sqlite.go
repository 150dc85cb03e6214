package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/model"
)

// NewSQL returns the stores backed by the migrated SQLite3 database.
func NewSQL(db *sql.DB) Stores {
	clock := func() time.Time { return time.Now().UTC() }
	return Stores{
		Schemas:   &SQLSchemas{db: db, now: clock},
		Responses: &SQLResponses{db: db, now: clock},
		Content:   &SQLContent{db: db, now: clock},
		Close:     func(context.Context) error { return nil },
	}
}

type SQLSchemas struct {
	db  *sql.DB
	now func() time.Time
}

const selectSchema = `
	SELECT
		s.id, s.version, s.title, s.description, s.steps, s.created_at,
		a.schema_id IS NOT NULL
	FROM survey_schema s
	LEFT OUTER JOIN active_schema a ON (a.schema_id = s.id)`

func scanSchema(row interface{ Scan(...any) error }) (*model.Schema, error) {
	s := model.Schema{}
	var steps string
	err := row.Scan(&s.ID, &s.Version, &s.Title, &s.Description, &steps, &s.CreatedAt, &s.IsActive)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(steps), &s.Steps); err != nil {
		return nil, fmt.Errorf("schema %s steps: %w", s.ID, err)
	}
	return &s, nil
}

func (st *SQLSchemas) queryOne(ctx context.Context, query string, args ...any) (*model.Schema, error) {
	s, err := scanSchema(st.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (st *SQLSchemas) GetActive(ctx context.Context) (*model.Schema, error) {
	return st.queryOne(ctx, selectSchema+`
		WHERE a.slot = 1`)
}

func (st *SQLSchemas) GetByID(ctx context.Context, id string) (*model.Schema, error) {
	return st.queryOne(ctx, selectSchema+`
		WHERE s.id = ?`,
		id,
	)
}

func (st *SQLSchemas) GetByVersion(ctx context.Context, version string) (*model.Schema, error) {
	return st.queryOne(ctx, selectSchema+`
		WHERE s.version = ?
		ORDER BY s.created_at DESC, s.rowid DESC
		LIMIT 1`,
		version,
	)
}

func (st *SQLSchemas) ListAll(ctx context.Context) ([]model.Schema, error) {
	rows, err := st.db.QueryContext(ctx, selectSchema+`
		ORDER BY s.created_at DESC, s.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schemas := []model.Schema{}
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, *s)
	}
	return schemas, rows.Err()
}

func (st *SQLSchemas) Create(ctx context.Context, draft model.Schema) (string, error) {
	steps, err := json.Marshal(draft.Steps)
	if err != nil {
		return "", fmt.Errorf("schemas.create.steps: %w", err)
	}
	now := st.now()
	id := uuid.NewString()

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO survey_schema (id, version, title, description, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		NewVersion(now),
		draft.Title,
		draft.Description,
		string(steps),
		now,
	)
	if err != nil {
		return "", fmt.Errorf("schemas.create.insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE active_schema
		SET schema_id = ?, revision = revision+1
		WHERE slot = 1`,
		id,
	)
	if err != nil {
		return "", fmt.Errorf("schemas.create.activate: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("schemas.create.commit: %w", err)
	}
	return id, nil
}

func (st *SQLSchemas) activeID(ctx context.Context) (string, error) {
	var id sql.NullString
	err := st.db.QueryRowContext(ctx, "SELECT schema_id FROM active_schema WHERE slot = 1").Scan(&id)
	return id.String, err
}

func (st *SQLSchemas) SetActive(ctx context.Context, id string) error {
	for attempt := 1; attempt <= maxActivationAttempts; attempt++ {
		current, err := st.activeID(ctx)
		if err != nil {
			return err
		}
		err = st.SwapActive(ctx, current, id)
		if !errors.Is(err, ErrActivationConflict) {
			return err
		}
		log.Debugf("schemas.set_active: lost race (attempt %d)", attempt)
	}
	return ErrActivationConflict
}

func (st *SQLSchemas) SwapActive(ctx context.Context, expected, id string) error {
	if id != "" {
		var exists bool
		err := st.db.QueryRowContext(ctx, "SELECT 1 FROM survey_schema WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
	}

	// optimistic lock
	res, err := st.db.ExecContext(ctx, `
		UPDATE active_schema
		SET schema_id = ?, revision = revision+1
		WHERE slot = 1
			AND IFNULL(schema_id, '') = ?`,
		sql.NullString{String: id, Valid: id != ""},
		expected,
	)
	if err != nil {
		return fmt.Errorf("schemas.swap_active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n < 1 {
		return ErrActivationConflict
	}
	return nil
}

type SQLResponses struct {
	db  *sql.DB
	now func() time.Time
}

func (st *SQLResponses) Save(ctx context.Context, r model.Response) (string, error) {
	r = PrepareResponse(r, uuid.NewString(), st.now())
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return "", fmt.Errorf("responses.save.answers: %w", err)
	}

	_, err = st.db.ExecContext(ctx, `
		INSERT INTO survey_response (id, schema_id, schema_version, answers, submitted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.SchemaID,
		r.SchemaVersion,
		string(answers),
		r.SubmittedAt.UTC(),
		r.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("responses.save.insert: %w", err)
	}
	return r.ID, nil
}

const selectResponse = `
	SELECT id, schema_id, schema_version, answers, submitted_at, created_at
	FROM survey_response`

func scanResponse(row interface{ Scan(...any) error }) (*model.Response, error) {
	r := model.Response{}
	var answers string
	err := row.Scan(&r.ID, &r.SchemaID, &r.SchemaVersion, &answers, &r.SubmittedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("response %s answers: %w", r.ID, err)
	}
	return &r, nil
}

func (st *SQLResponses) GetByID(ctx context.Context, id string) (*model.Response, error) {
	r, err := scanResponse(st.db.QueryRowContext(ctx, selectResponse+`
		WHERE id = ?`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (st *SQLResponses) ListAll(ctx context.Context) ([]model.Response, error) {
	rows, err := st.db.QueryContext(ctx, selectResponse+`
		ORDER BY submitted_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []model.Response{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, *r)
	}
	return responses, rows.Err()
}

func (st *SQLResponses) DeleteByID(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, "DELETE FROM survey_response WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("responses.delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n < 1 {
		return ErrNotFound
	}
	return nil
}

type SQLContent struct {
	db  *sql.DB
	now func() time.Time
}

func (st *SQLContent) Get(ctx context.Context, name string, dst any) (bool, error) {
	var body string
	err := st.db.QueryRowContext(ctx, "SELECT body FROM content_document WHERE name = ?", name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err = json.Unmarshal([]byte(body), dst); err != nil {
		return true, fmt.Errorf("content %s: %w", name, err)
	}
	return true, nil
}

func (st *SQLContent) Put(ctx context.Context, name string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("content.put.%s: %w", name, err)
	}
	_, err = st.db.ExecContext(ctx, `
		INSERT INTO content_document (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at`,
		name,
		string(body),
		st.now(),
	)
	if err != nil {
		return fmt.Errorf("content.put.%s: %w", name, err)
	}
	return nil
}
