package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the hand-written statements for every table.
type Queries struct {
	db  DBTX
	now func() time.Time
}

func New(db DBTX) *Queries {
	return &Queries{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx returns a Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, now: q.now}
}

// Accounts

const upsertAccount = `
INSERT INTO accounts (id, display_name, subscribe_url, custom_prompt, example_twitter, example_linkedin, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    display_name = excluded.display_name,
    subscribe_url = excluded.subscribe_url,
    custom_prompt = excluded.custom_prompt,
    example_twitter = excluded.example_twitter,
    example_linkedin = excluded.example_linkedin,
    updated_at = excluded.updated_at`

type UpsertAccountParams struct {
	ID              string
	DisplayName     string
	SubscribeURL    string
	CustomPrompt    string
	ExampleTwitter  string
	ExampleLinkedIn string
}

func (q *Queries) UpsertAccount(ctx context.Context, arg UpsertAccountParams) error {
	now := q.now()
	_, err := q.db.ExecContext(ctx, upsertAccount,
		arg.ID, arg.DisplayName, arg.SubscribeURL, arg.CustomPrompt,
		arg.ExampleTwitter, arg.ExampleLinkedIn, now, now,
	)
	return err
}

const getAccount = `
SELECT id, display_name, subscribe_url, custom_prompt, example_twitter, example_linkedin, created_at, updated_at
FROM accounts WHERE id = ?`

func (q *Queries) GetAccount(ctx context.Context, id string) (Account, error) {
	var a Account
	err := q.db.QueryRowContext(ctx, getAccount, id).Scan(
		&a.ID, &a.DisplayName, &a.SubscribeURL, &a.CustomPrompt,
		&a.ExampleTwitter, &a.ExampleLinkedIn, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

const listAccounts = `
SELECT id, display_name, subscribe_url, custom_prompt, example_twitter, example_linkedin, created_at, updated_at
FROM accounts ORDER BY id`

func (q *Queries) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.ID, &a.DisplayName, &a.SubscribeURL, &a.CustomPrompt,
			&a.ExampleTwitter, &a.ExampleLinkedIn, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// Credentials

const getCredential = `
SELECT account_id, blob, version, updated_at FROM credentials WHERE account_id = ?`

func (q *Queries) GetCredential(ctx context.Context, accountID string) (Credential, error) {
	var c Credential
	err := q.db.QueryRowContext(ctx, getCredential, accountID).Scan(&c.AccountID, &c.Blob, &c.Version, &c.UpdatedAt)
	return c, err
}

const upsertCredential = `
INSERT INTO credentials (account_id, blob, version, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT(account_id) DO UPDATE SET
    blob = excluded.blob,
    version = credentials.version + 1,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertCredential(ctx context.Context, accountID, blob string) error {
	_, err := q.db.ExecContext(ctx, upsertCredential, accountID, blob, q.now())
	return err
}

// Runs

const createRun = `
INSERT INTO runs (id, account_id, edition_url, content_types, publish, status, message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`

type CreateRunParams struct {
	ID           string
	AccountID    string
	EditionURL   string
	ContentTypes string
	Publish      bool
	Status       string
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	status := arg.Status
	if status == "" {
		status = RunQueued
	}
	now := q.now()
	_, err := q.db.ExecContext(ctx, createRun,
		arg.ID, arg.AccountID, arg.EditionURL, arg.ContentTypes, arg.Publish, status, now, now,
	)
	return err
}

const runColumns = `id, account_id, edition_url, content_types, publish, status, message, created_at, updated_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.AccountID, &r.EditionURL, &r.ContentTypes, &r.Publish,
		&r.Status, &r.Message, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (q *Queries) GetRun(ctx context.Context, id string) (Run, error) {
	return scanRun(q.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

const updateRunStatus = `UPDATE runs SET status = ?, message = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	res, err := q.db.ExecContext(ctx, updateRunStatus, status, message, q.now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

const claimRun = `UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

// ClaimRun moves a queued run to analyzing. It reports false when another
// worker claimed the run first.
func (q *Queries) ClaimRun(ctx context.Context, id string) (bool, error) {
	res, err := q.db.ExecContext(ctx, claimRun, RunAnalyzing, q.now(), id, RunQueued)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (q *Queries) listRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// ListRuns returns the newest runs first.
func (q *Queries) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return q.listRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
}

// ListQueuedRuns returns queued runs oldest first.
func (q *Queries) ListQueuedRuns(ctx context.Context, limit int) ([]Run, error) {
	return q.listRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY created_at ASC LIMIT ?`, RunQueued, limit)
}

// Units

const insertUnit = `
INSERT INTO units (run_id, post_number, content_type, envelope, status, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

type InsertUnitParams struct {
	RunID       string
	PostNumber  int64
	ContentType string
	Envelope    string
	Status      string
	Error       string
}

func (q *Queries) InsertUnit(ctx context.Context, arg InsertUnitParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertUnit,
		arg.RunID, arg.PostNumber, arg.ContentType, arg.Envelope, arg.Status, arg.Error, q.now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateUnitStatus = `UPDATE units SET status = ?, error = ? WHERE id = ?`

func (q *Queries) UpdateUnitStatus(ctx context.Context, id int64, status, errMsg string) error {
	_, err := q.db.ExecContext(ctx, updateUnitStatus, status, errMsg, id)
	return err
}

const listUnitsByRun = `
SELECT id, run_id, post_number, content_type, envelope, status, error, created_at
FROM units WHERE run_id = ? ORDER BY post_number, id`

func (q *Queries) ListUnitsByRun(ctx context.Context, runID string) ([]Unit, error) {
	rows, err := q.db.QueryContext(ctx, listUnitsByRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.RunID, &u.PostNumber, &u.ContentType, &u.Envelope,
			&u.Status, &u.Error, &u.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// Published posts

const insertPublishedPost = `
INSERT INTO published_posts (unit_id, account_id, platform, item_index, post_type, post_id, parent_id, quote_id, url, text, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertPublishedPostParams struct {
	UnitID    int64
	AccountID string
	Platform  string
	ItemIndex int64
	PostType  string
	PostID    string
	ParentID  string
	QuoteID   string
	URL       string
	Text      string
}

func (q *Queries) InsertPublishedPost(ctx context.Context, arg InsertPublishedPostParams) error {
	_, err := q.db.ExecContext(ctx, insertPublishedPost,
		arg.UnitID, arg.AccountID, arg.Platform, arg.ItemIndex, arg.PostType,
		arg.PostID, arg.ParentID, arg.QuoteID, arg.URL, arg.Text, q.now(),
	)
	return err
}

const listPublishedByAccount = `
SELECT id, unit_id, account_id, platform, item_index, post_type, post_id, parent_id, quote_id, url, text, created_at
FROM published_posts WHERE account_id = ? AND platform = ? ORDER BY created_at DESC LIMIT ?`

func (q *Queries) ListPublishedByAccount(ctx context.Context, accountID, platform string, limit int) ([]PublishedPost, error) {
	rows, err := q.db.QueryContext(ctx, listPublishedByAccount, accountID, platform, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PublishedPost
	for rows.Next() {
		var p PublishedPost
		if err := rows.Scan(&p.ID, &p.UnitID, &p.AccountID, &p.Platform, &p.ItemIndex, &p.PostType,
			&p.PostID, &p.ParentID, &p.QuoteID, &p.URL, &p.Text, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
