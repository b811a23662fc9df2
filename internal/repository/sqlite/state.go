package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/repository"
)

// Timestamps are stored as RFC 3339 text with nanoseconds so they come back
// exactly as they went in.
const timeLayout = time.RFC3339Nano

// Save writes snap into a fresh database and renames it over the live file.
//
// PARAMETERIZED QUERIES:
// Every value goes through a ? placeholder. Labels and contents are user
// text; building SQL from them with Sprintf would be an injection hole.
func (db *DB) Save(ctx context.Context, snap model.Snapshot) (err error) {
	if err := os.MkdirAll(filepath.Dir(db.path), 0o755); err != nil {
		return apperror.IOFailure("creating data directory", err)
	}

	tmp := tempPath(db.path)
	defer func() {
		if err != nil {
			os.Remove(tmp)
			os.Remove(tmp + "-journal")
		}
	}()

	conn, err := open(ctx, tmp)
	if err != nil {
		return apperror.IOFailure("creating "+tmp, err)
	}
	if err := writeSnapshot(ctx, conn, snap); err != nil {
		conn.Close()
		return apperror.IOFailure("writing snapshot", err)
	}
	if err := conn.Close(); err != nil {
		return apperror.IOFailure("closing "+tmp, err)
	}

	if err := os.Rename(tmp, db.path); err != nil {
		return apperror.IOFailure("replacing "+db.path, err)
	}
	return nil
}

func writeSnapshot(ctx context.Context, conn *sql.DB, snap model.Snapshot) error {
	if err := migrate(ctx, conn); err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('version', ?)`, strconv.Itoa(snap.Version),
	); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}

	for _, c := range snap.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, name, color, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Color, c.CreatedAt.Format(timeLayout), c.UpdatedAt.Format(timeLayout),
		); err != nil {
			return fmt.Errorf("inserting category %s: %w", c.ID, err)
		}
	}

	for _, t := range snap.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (id, label, created_at) VALUES (?, ?, ?)`,
			t.ID, t.Label, t.CreatedAt.Format(timeLayout),
		); err != nil {
			return fmt.Errorf("inserting tag %s: %w", t.ID, err)
		}
	}

	for pos, s := range snap.Snippets {
		var category sql.NullString
		if s.CategoryID != "" {
			category = sql.NullString{String: s.CategoryID, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snippets
			   (id, position, label, content, created_at, updated_at, is_template, is_markdown, hidden, category_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, pos, s.Label, s.Content,
			s.CreatedAt.Format(timeLayout), s.UpdatedAt.Format(timeLayout),
			s.IsTemplate, s.IsMarkdown, s.Hidden, category,
		); err != nil {
			return fmt.Errorf("inserting snippet %s: %w", s.ID, err)
		}

		for _, tagID := range s.TagIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO snippet_tags (snippet_id, tag_id) VALUES (?, ?)`, s.ID, tagID,
			); err != nil {
				return fmt.Errorf("tagging snippet %s with %s: %w", s.ID, tagID, err)
			}
		}
	}

	return tx.Commit()
}

// Load reads the database back into a snapshot. A missing file is
// repository.ErrNoState; a file that is not one of our databases, or whose
// rows break the snapshot invariants, is apperror.ErrCorruptState.
func (db *DB) Load(ctx context.Context) (model.Snapshot, error) {
	ok, err := exists(db.path)
	if err != nil {
		return model.Snapshot{}, err
	}
	if !ok {
		return model.Snapshot{}, repository.ErrNoState
	}

	// Permission problems are IO; once the file is readable, anything SQLite
	// rejects ("file is not a database") is a damaged file.
	f, err := os.Open(db.path)
	if err != nil {
		return model.Snapshot{}, apperror.IOFailure("opening "+db.path, err)
	}
	f.Close()

	conn, err := open(ctx, db.path)
	if err != nil {
		return model.Snapshot{}, apperror.CorruptState("opening "+filepath.Base(db.path), err)
	}
	defer conn.Close()

	snap, err := readSnapshot(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			return model.Snapshot{}, ctx.Err()
		}
		return model.Snapshot{}, apperror.CorruptState("reading "+filepath.Base(db.path), err)
	}
	if err := snap.Validate(); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

func readSnapshot(ctx context.Context, conn *sql.DB) (model.Snapshot, error) {
	var snap model.Snapshot

	var version string
	err := conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, errors.New("missing version")
	}
	if err != nil {
		return snap, fmt.Errorf("reading version: %w", err)
	}
	if snap.Version, err = strconv.Atoi(version); err != nil {
		return snap, fmt.Errorf("version %q: %w", version, err)
	}

	if snap.Categories, err = readCategories(ctx, conn); err != nil {
		return snap, err
	}
	if snap.Tags, err = readTags(ctx, conn); err != nil {
		return snap, err
	}
	if snap.Snippets, err = readSnippets(ctx, conn); err != nil {
		return snap, err
	}
	return snap, nil
}

func readCategories(ctx context.Context, conn *sql.DB) ([]model.Category, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT id, name, color, created_at, updated_at FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	// ALWAYS close rows, or the connection stays checked out of the pool.
	defer rows.Close()

	out := []model.Category{}
	for rows.Next() {
		var c model.Category
		var created, updated string
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		if c.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("category %s created_at: %w", c.ID, err)
		}
		if c.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, fmt.Errorf("category %s updated_at: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func readTags(ctx context.Context, conn *sql.DB) ([]model.Tag, error) {
	rows, err := conn.QueryContext(ctx, `SELECT id, label, created_at FROM tags ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()

	out := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		var created string
		if err := rows.Scan(&t.ID, &t.Label, &created); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		if t.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("tag %s created_at: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func readSnippets(ctx context.Context, conn *sql.DB) ([]model.Snippet, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT id, label, content, created_at, updated_at, is_template, is_markdown, hidden, category_id
		FROM snippets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying snippets: %w", err)
	}
	defer rows.Close()

	out := []model.Snippet{}
	byID := make(map[string]int)
	for rows.Next() {
		var s model.Snippet
		var created, updated string
		var category sql.NullString
		if err := rows.Scan(&s.ID, &s.Label, &s.Content, &created, &updated,
			&s.IsTemplate, &s.IsMarkdown, &s.Hidden, &category); err != nil {
			return nil, fmt.Errorf("scanning snippet: %w", err)
		}
		if s.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("snippet %s created_at: %w", s.ID, err)
		}
		if s.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, fmt.Errorf("snippet %s updated_at: %w", s.ID, err)
		}
		s.CategoryID = category.String
		s.TagIDs = []string{}
		byID[s.ID] = len(out)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tagRows, err := conn.QueryContext(ctx,
		`SELECT snippet_id, tag_id FROM snippet_tags ORDER BY snippet_id, tag_id`)
	if err != nil {
		return nil, fmt.Errorf("querying snippet tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var snippetID, tagID string
		if err := tagRows.Scan(&snippetID, &tagID); err != nil {
			return nil, fmt.Errorf("scanning snippet tag: %w", err)
		}
		i, ok := byID[snippetID]
		if !ok {
			return nil, fmt.Errorf("tag %s attached to missing snippet %s", tagID, snippetID)
		}
		out[i].TagIDs = append(out[i].TagIDs, tagID)
	}
	return out, tagRows.Err()
}
