package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"librarium/api/internal/models"
)

var (
	ErrLoanNotFound      = errors.New("loan not found")
	ErrNoCopiesLeft      = errors.New("no copies available")
	ErrAlreadyBorrowed   = errors.New("book already borrowed by user")
	ErrLoanAlreadyClosed = errors.New("loan already returned")
)

type LoanRepository struct {
	pool *pgxpool.Pool
}

func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

const loanColumns = `id, book_id, user_id, status, borrowed_at, due_at, returned_at`

// Borrow decrements the book's available copies and inserts the loan in a
// single transaction. The conditional decrement doubles as the availability
// check, so two concurrent borrows cannot take the last copy twice.
func (r *LoanRepository) Borrow(ctx context.Context, loan models.Loan) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const duplicateQuery = `
		SELECT EXISTS (
			SELECT 1 FROM loans WHERE book_id = $1 AND user_id = $2 AND returned_at IS NULL
		)
	`
	var duplicate bool
	if err := tx.QueryRow(ctx, duplicateQuery, loan.BookID, loan.UserID).Scan(&duplicate); err != nil {
		return err
	}
	if duplicate {
		return ErrAlreadyBorrowed
	}

	const decrementQuery = `
		UPDATE books
		SET available_copies = available_copies - 1, updated_at = NOW()
		WHERE id = $1 AND available_copies > 0
	`
	cmd, err := tx.Exec(ctx, decrementQuery, loan.BookID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := scanBookExists(ctx, tx, loan.BookID); err != nil {
			return err
		}
		return ErrNoCopiesLeft
	}

	const insertQuery = `
		INSERT INTO loans (id, book_id, user_id, status, borrowed_at, due_at)
		VALUES ($1, $2, $3, $4, NOW(), $5)
	`
	if _, err := tx.Exec(ctx, insertQuery,
		loan.ID,
		loan.BookID,
		loan.UserID,
		loan.Status,
		loan.DueAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Return closes the loan and gives the copy back in one transaction.
func (r *LoanRepository) Return(ctx context.Context, loanID string) (models.Loan, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Loan{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const closeQuery = `
		UPDATE loans
		SET status = $2, returned_at = NOW()
		WHERE id = $1 AND returned_at IS NULL
		RETURNING ` + loanColumns

	loan, err := scanLoan(tx.QueryRow(ctx, closeQuery, loanID, models.LoanStatusReturned))
	if err != nil {
		if errors.Is(err, ErrLoanNotFound) {
			if _, getErr := r.GetByID(ctx, loanID); getErr == nil {
				return models.Loan{}, ErrLoanAlreadyClosed
			}
		}
		return models.Loan{}, err
	}

	const incrementQuery = `
		UPDATE books
		SET available_copies = available_copies + 1, updated_at = NOW()
		WHERE id = $1 AND available_copies < total_copies
	`
	if _, err := tx.Exec(ctx, incrementQuery, loan.BookID); err != nil {
		return models.Loan{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Loan{}, err
	}
	return loan, nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id string) (models.Loan, error) {
	const query = `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	return scanLoan(r.pool.QueryRow(ctx, query, id))
}

func (r *LoanRepository) ListByUser(ctx context.Context, userID string) ([]models.Loan, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE user_id = $1
		ORDER BY borrowed_at DESC
	`
	return r.queryLoans(ctx, query, userID)
}

func (r *LoanRepository) List(ctx context.Context, limit int, offset int) ([]models.Loan, error) {
	const query = `
		SELECT ` + loanColumns + `
		FROM loans
		ORDER BY borrowed_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.queryLoans(ctx, query, limit, offset)
}

func (r *LoanRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM loans WHERE user_id = $1 AND returned_at IS NULL`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *LoanRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM loans`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkOverdue flips active loans past their due date; run from the scheduler.
func (r *LoanRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE loans
		SET status = $1
		WHERE status = $2 AND returned_at IS NULL AND due_at < $3
	`
	cmd, err := r.pool.Exec(ctx, query, models.LoanStatusOverdue, models.LoanStatusActive, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

type MonthCount struct {
	Month time.Time
	Count int
}

func (r *LoanRepository) CountPerMonth(ctx context.Context, months int) ([]MonthCount, error) {
	const query = `
		SELECT date_trunc('month', borrowed_at) AS month, COUNT(*)
		FROM loans
		WHERE borrowed_at >= date_trunc('month', NOW()) - ($1 - 1) * INTERVAL '1 month'
		GROUP BY month
		ORDER BY month ASC
	`

	rows, err := r.pool.Query(ctx, query, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []MonthCount
	for rows.Next() {
		var mc MonthCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, mc)
	}
	return counts, rows.Err()
}

type BookCount struct {
	BookID string
	Title  string
	Count  int
}

func (r *LoanRepository) TopBorrowed(ctx context.Context, limit int) ([]BookCount, error) {
	const query = `
		SELECT l.book_id, b.title, COUNT(*)
		FROM loans l
		JOIN books b ON b.id = l.book_id
		GROUP BY l.book_id, b.title
		ORDER BY COUNT(*) DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []BookCount
	for rows.Next() {
		var bc BookCount
		if err := rows.Scan(&bc.BookID, &bc.Title, &bc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, bc)
	}
	return counts, rows.Err()
}

func (r *LoanRepository) queryLoans(ctx context.Context, query string, args ...any) ([]models.Loan, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func scanLoan(row pgx.Row) (models.Loan, error) {
	var loan models.Loan
	if err := row.Scan(
		&loan.ID,
		&loan.BookID,
		&loan.UserID,
		&loan.Status,
		&loan.BorrowedAt,
		&loan.DueAt,
		&loan.ReturnedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Loan{}, ErrLoanNotFound
		}
		return models.Loan{}, err
	}
	return loan, nil
}

func scanBookExists(ctx context.Context, tx pgx.Tx, bookID string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrBookNotFound
	}
	return true, nil
}
