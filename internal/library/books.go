package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Book is a catalog entry.
type Book struct {
	ID            string     `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	Author        string     `db:"author" json:"author"`
	Genre         string     `db:"genre" json:"genre"`
	FileName      string     `db:"file_name" json:"file_name"`
	CoverFile     string     `db:"cover_file" json:"cover_file,omitempty"`
	DateAdded     time.Time  `db:"date_added" json:"date_added"`
	LastReadIndex int        `db:"last_read_index" json:"last_read_index"`
	LastReadPage  int        `db:"last_read_page" json:"last_read_page"`
	LastReadAt    *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
}

// BookUpdate holds user edits. Nil fields are left unchanged.
type BookUpdate struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	Genre  *string `json:"genre,omitempty"`
}

const bookColumns = `id, title, author, genre, file_name, cover_file, date_added,
	last_read_index, last_read_page, last_read_at`

func (db *DB) insertBook(ctx context.Context, b *Book) error {
	_, err := db.NamedExecContext(ctx, `
		INSERT INTO books (id, title, author, genre, file_name, cover_file, date_added)
		VALUES (:id, :title, :author, :genre, :file_name, :cover_file, :date_added)
	`, b)
	return err
}

func (db *DB) getBook(ctx context.Context, id string) (*Book, error) {
	var b Book
	err := db.GetContext(ctx, &b, "SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// listBooks returns books whose title, author or genre contains query,
// ignoring case, newest first. An empty query matches every book.
func (db *DB) listBooks(ctx context.Context, query string) ([]Book, error) {
	books := []Book{}
	query = strings.TrimSpace(query)
	if query == "" {
		err := db.SelectContext(ctx, &books, "SELECT "+bookColumns+" FROM books ORDER BY date_added DESC, title")
		return books, err
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	err := db.SelectContext(ctx, &books, `
		SELECT `+bookColumns+` FROM books
		WHERE lower(title) LIKE ? ESCAPE '\'
		   OR lower(author) LIKE ? ESCAPE '\'
		   OR lower(genre) LIKE ? ESCAPE '\'
		ORDER BY date_added DESC, title
	`, pattern, pattern, pattern)
	return books, err
}

func (db *DB) updateBook(ctx context.Context, id string, u BookUpdate) error {
	res, err := db.ExecContext(ctx, `
		UPDATE books SET
			title = COALESCE(?, title),
			author = COALESCE(?, author),
			genre = COALESCE(?, genre)
		WHERE id = ?
	`, nullable(u.Title), nullable(u.Author), nullable(u.Genre), id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

func (db *DB) setProgress(ctx context.Context, id string, index, page int, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE books SET last_read_index = ?, last_read_page = ?, last_read_at = ?
		WHERE id = ?
	`, index, page, at, id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

func (db *DB) deleteBook(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
