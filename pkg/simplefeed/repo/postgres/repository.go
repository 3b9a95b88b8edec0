package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplefeed.Repository using PostgreSQL.
//
// Likes live in a uuid[] column toggled by a single UPDATE. Comments live in
// their own table ordered by insertion sequence, so appends and removals are
// single INSERT and DELETE statements that never rewrite sibling comments.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var _ simplefeed.Repository = (*Repository)(nil)

// EnsureSchema creates the feed tables and indexes if they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "comment") {
				return fmt.Errorf("comment already exists")
			}
			return fmt.Errorf("content already exists")
		case "23503": // foreign_key_violation
			return simplefeed.ErrContentNotFound
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", simplefeed.ErrValidation, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const contentColumns = `id, owner_id, kind, caption, media_id, media_url, likes, version, created_at, updated_at`

func scanContent(row pgx.Row) (*simplefeed.ContentRecord, error) {
	var c simplefeed.ContentRecord
	var kind string
	err := row.Scan(&c.ID, &c.OwnerID, &kind, &c.Caption, &c.Media.ExternalID, &c.Media.URL,
		&c.Likes, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Kind = simplefeed.Kind(kind)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.Likes == nil {
		c.Likes = []uuid.UUID{}
	}
	c.Comments = []simplefeed.Comment{}
	return &c, nil
}

// Content operations

// CreateContent inserts the record. Seed comments are written in the same
// transaction, so a failed comment leaves nothing behind.
func (r *Repository) CreateContent(ctx context.Context, content *simplefeed.ContentRecord) error {
	if len(content.Comments) == 0 {
		return r.insertContent(ctx, content)
	}

	db, ok := r.db.(txBeginner)
	if !ok {
		return fmt.Errorf("create content with comments requires a transactional connection")
	}
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		txRepo := New(tx)
		if err := txRepo.insertContent(ctx, content); err != nil {
			return err
		}
		for _, c := range content.Comments {
			if err := txRepo.seedComment(ctx, content.ID, c); err != nil {
				return err
			}
		}
		return nil
	})
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func (r *Repository) insertContent(ctx context.Context, content *simplefeed.ContentRecord) error {
	query := `
		INSERT INTO feed_content (` + contentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	likes := content.Likes
	if likes == nil {
		likes = []uuid.UUID{}
	}
	_, err := r.db.Exec(ctx, query,
		content.ID, content.OwnerID, string(content.Kind), content.Caption,
		content.Media.ExternalID, content.Media.URL, likes, content.Version,
		content.CreatedAt, content.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create content", err)
	}
	return nil
}

// seedComment stores a comment that arrives with a new record. Unlike
// AppendComment it leaves the record's version alone.
func (r *Repository) seedComment(ctx context.Context, contentID uuid.UUID, comment simplefeed.Comment) error {
	query := `
		INSERT INTO feed_comment (id, content_id, author_id, author_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		comment.ID, contentID, comment.AuthorID, comment.AuthorName, comment.Body, comment.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create content comment", err)
	}
	return nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*simplefeed.ContentRecord, error) {
	query := `SELECT ` + contentColumns + ` FROM feed_content WHERE id = $1`

	content, err := scanContent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplefeed.ErrContentNotFound
		}
		return nil, r.handlePostgresError("get content", err)
	}

	if err := r.loadComments(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) error {
	// Comments go with the row through ON DELETE CASCADE.
	tag, err := r.db.Exec(ctx, `DELETE FROM feed_content WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete content", err)
	}
	if tag.RowsAffected() == 0 {
		return simplefeed.ErrContentNotFound
	}
	return nil
}

func (r *Repository) ListFeed(ctx context.Context, q simplefeed.FeedQuery) ([]*simplefeed.ContentRecord, error) {
	var sb strings.Builder
	args := []interface{}{string(q.Kind)}

	sb.WriteString(`SELECT ` + contentColumns + ` FROM feed_content WHERE kind = $1`)
	if q.Before != nil {
		args = append(args, q.Before.CreatedAt)
		if q.Before.ID == uuid.Nil {
			sb.WriteString(` AND created_at < $2`)
		} else {
			args = append(args, q.Before.ID)
			sb.WriteString(` AND (created_at, id) < ($2, $3)`)
		}
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(fmt.Sprintf(` LIMIT $%d`, len(args)))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, r.handlePostgresError("list feed", err)
	}
	defer rows.Close()

	var contents []*simplefeed.ContentRecord
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, r.handlePostgresError("list feed", err)
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list feed", err)
	}

	if err := r.loadComments(ctx, contents...); err != nil {
		return nil, err
	}
	return contents, nil
}

// Engagement operations

func (r *Repository) ToggleLike(ctx context.Context, contentID, userID uuid.UUID, at time.Time) (*simplefeed.ContentRecord, bool, error) {
	// Row locking serializes concurrent toggles; each one re-evaluates the
	// CASE against the latest committed likes.
	query := `
		UPDATE feed_content SET
			likes = CASE WHEN $2::uuid = ANY(likes)
				THEN array_remove(likes, $2::uuid)
				ELSE array_append(likes, $2::uuid) END,
			version = version + 1,
			updated_at = $3
		WHERE id = $1
		RETURNING $2::uuid = ANY(likes)`

	var liked bool
	if err := r.db.QueryRow(ctx, query, contentID, userID, at).Scan(&liked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, simplefeed.ErrContentNotFound
		}
		return nil, false, r.handlePostgresError("toggle like", err)
	}

	content, err := r.GetContent(ctx, contentID)
	if err != nil {
		return nil, false, err
	}
	return content, liked, nil
}

func (r *Repository) AppendComment(ctx context.Context, contentID uuid.UUID, comment simplefeed.Comment) (*simplefeed.ContentRecord, error) {
	if err := r.insertComment(ctx, contentID, comment); err != nil {
		return nil, err
	}
	return r.GetContent(ctx, contentID)
}

func (r *Repository) insertComment(ctx context.Context, contentID uuid.UUID, comment simplefeed.Comment) error {
	query := `
		WITH bumped AS (
			UPDATE feed_content SET version = version + 1, updated_at = $6::timestamptz
			WHERE id = $1
			RETURNING id
		)
		INSERT INTO feed_comment (id, content_id, author_id, author_name, body, created_at)
		SELECT $2::uuid, bumped.id, $3::uuid, $4::text, $5::text, $6::timestamptz FROM bumped
		RETURNING seq`

	var seq int64
	err := r.db.QueryRow(ctx, query,
		contentID, comment.ID, comment.AuthorID, comment.AuthorName, comment.Body, comment.CreatedAt).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return simplefeed.ErrContentNotFound
		}
		return r.handlePostgresError("append comment", err)
	}
	return nil
}

func (r *Repository) RemoveComment(ctx context.Context, contentID, commentID uuid.UUID, at time.Time) (*simplefeed.ContentRecord, error) {
	query := `
		WITH removed AS (
			DELETE FROM feed_comment WHERE content_id = $1 AND id = $2
			RETURNING content_id
		)
		UPDATE feed_content c SET version = c.version + 1, updated_at = $3
		FROM removed WHERE c.id = removed.content_id
		RETURNING c.id`

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, query, contentID, commentID, at).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missing(ctx, contentID, simplefeed.ErrCommentNotFound)
		}
		return nil, r.handlePostgresError("remove comment", err)
	}
	return r.GetContent(ctx, contentID)
}

func (r *Repository) UpdateCaption(ctx context.Context, contentID uuid.UUID, caption string, expectedVersion *int64, at time.Time) (*simplefeed.ContentRecord, error) {
	query := `
		UPDATE feed_content SET caption = $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND ($4::bigint IS NULL OR version = $4::bigint)
		RETURNING id`

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, query, contentID, caption, at, expectedVersion).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missing(ctx, contentID, simplefeed.ErrConflict)
		}
		return nil, r.handlePostgresError("update caption", err)
	}
	return r.GetContent(ctx, contentID)
}

// missing explains a conditional write that matched no row: the record is
// gone, or it exists and ifExists applies.
func (r *Repository) missing(ctx context.Context, contentID uuid.UUID, ifExists error) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM feed_content WHERE id = $1)`, contentID).Scan(&exists)
	if err != nil {
		return r.handlePostgresError("check content", err)
	}
	if !exists {
		return simplefeed.ErrContentNotFound
	}
	return ifExists
}

func (r *Repository) loadComments(ctx context.Context, contents ...*simplefeed.ContentRecord) error {
	if len(contents) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*simplefeed.ContentRecord, len(contents))
	ids := make([]uuid.UUID, 0, len(contents))
	for _, c := range contents {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	query := `
		SELECT content_id, id, author_id, author_name, body, created_at
		FROM feed_comment WHERE content_id = ANY($1)
		ORDER BY content_id, seq`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return r.handlePostgresError("load comments", err)
	}
	defer rows.Close()

	for rows.Next() {
		var contentID uuid.UUID
		var c simplefeed.Comment
		if err := rows.Scan(&contentID, &c.ID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return r.handlePostgresError("load comments", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		if content, ok := byID[contentID]; ok {
			content.Comments = append(content.Comments, c)
		}
	}
	if err := rows.Err(); err != nil {
		return r.handlePostgresError("load comments", err)
	}
	return nil
}

// Profile operations

func (r *Repository) UpsertProfile(ctx context.Context, profile *simplefeed.Profile) error {
	query := `
		INSERT INTO feed_profile (id, name, avatar_url, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			avatar_url = CASE WHEN EXCLUDED.avatar_url <> '' THEN EXCLUDED.avatar_url ELSE feed_profile.avatar_url END,
			updated_at = now()`

	if _, err := r.db.Exec(ctx, query, profile.ID, profile.Name, profile.AvatarURL); err != nil {
		return r.handlePostgresError("upsert profile", err)
	}
	return nil
}

func (r *Repository) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*simplefeed.Profile, error) {
	result := make(map[uuid.UUID]*simplefeed.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, name, avatar_url FROM feed_profile WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, r.handlePostgresError("get profiles", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p simplefeed.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.AvatarURL); err != nil {
			return nil, r.handlePostgresError("get profiles", err)
		}
		result[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("get profiles", err)
	}
	return result, nil
}
