package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"librarium/api/internal/models"
)

var (
	ErrBookNotFound  = errors.New("book not found")
	ErrCopiesOnLoan  = errors.New("book has copies on loan")
	ErrDuplicateISBN = errors.New("isbn already registered")
)

type BookFilter struct {
	Genre  string
	Search string
	Limit  int
	Offset int
}

type BookRepository struct {
	pool *pgxpool.Pool
}

func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

const bookColumns = `id, title, author, isbn, genre, description, cover_url, total_copies, available_copies, created_at, updated_at`

func (r *BookRepository) Create(ctx context.Context, book models.Book) error {
	const query = `
		INSERT INTO books (
			id, title, author, isbn, genre, description, cover_url, total_copies, available_copies, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.ISBN,
		book.Genre,
		book.Description,
		book.CoverURL,
		book.TotalCopies,
		book.AvailableCopies,
	)
	if isUniqueViolation(err, "books_isbn_key") {
		return ErrDuplicateISBN
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func (r *BookRepository) GetByID(ctx context.Context, id string) (models.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1`, bookColumns)
	return scanBook(r.pool.QueryRow(ctx, query, id))
}

func (r *BookRepository) List(ctx context.Context, filter BookFilter) ([]models.Book, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.Genre != "" {
		args = append(args, filter.Genre)
		conditions = append(conditions, fmt.Sprintf("genre = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit)
	limitArg := len(args)
	args = append(args, filter.Offset)
	offsetArg := len(args)

	query := fmt.Sprintf(`
		SELECT %s FROM books
		%s
		ORDER BY title ASC
		LIMIT $%d OFFSET $%d
	`, bookColumns, where, limitArg, offsetArg)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// SearchByTitle is used by the chatbot title-lookup rule.
func (r *BookRepository) SearchByTitle(ctx context.Context, title string, limit int) ([]models.Book, error) {
	return r.List(ctx, BookFilter{Search: title, Limit: limit})
}

// Update adjusts available_copies by the total_copies delta. The guard on
// copies out on loan keeps available_copies from going negative when an admin
// shrinks the stock.
func (r *BookRepository) Update(ctx context.Context, book models.Book) error {
	const query = `
		UPDATE books
		SET title = $2, author = $3, isbn = $4, genre = $5, description = $6,
		    total_copies = $7,
		    available_copies = available_copies + ($7 - total_copies),
		    updated_at = NOW()
		WHERE id = $1 AND $7 >= total_copies - available_copies
	`
	cmd, err := r.pool.Exec(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.ISBN,
		book.Genre,
		book.Description,
		book.TotalCopies,
	)
	if isUniqueViolation(err, "books_isbn_key") {
		return ErrDuplicateISBN
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, book.ID); err != nil {
			return err
		}
		return ErrCopiesOnLoan
	}
	return nil
}

func (r *BookRepository) UpdateCoverURL(ctx context.Context, id string, coverURL string) error {
	const query = `UPDATE books SET cover_url = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, coverURL)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Delete refuses while any copy is out on loan.
func (r *BookRepository) Delete(ctx context.Context, id string) error {
	const query = `
		DELETE FROM books
		WHERE id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM loans WHERE book_id = $1 AND returned_at IS NULL
		  )
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrCopiesOnLoan
	}
	return nil
}

func (r *BookRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM books`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *BookRepository) CountByGenre(ctx context.Context) (map[string]int, error) {
	const query = `SELECT genre, COUNT(*) FROM books GROUP BY genre`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var genre string
		var count int
		if err := rows.Scan(&genre, &count); err != nil {
			return nil, err
		}
		counts[genre] = count
	}
	return counts, rows.Err()
}

func scanBook(row pgx.Row) (models.Book, error) {
	var book models.Book
	if err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.Genre,
		&book.Description,
		&book.CoverURL,
		&book.TotalCopies,
		&book.AvailableCopies,
		&book.CreatedAt,
		&book.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Book{}, ErrBookNotFound
		}
		return models.Book{}, err
	}
	return book, nil
}
