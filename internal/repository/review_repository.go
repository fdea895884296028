package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"librarium/api/internal/models"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrDuplicateReview = errors.New("user already reviewed book")
)

type ReviewRepository struct {
	pool *pgxpool.Pool
}

func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func (r *ReviewRepository) Create(ctx context.Context, review models.Review) error {
	const query = `
		INSERT INTO reviews (id, book_id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := r.pool.Exec(ctx, query,
		review.ID,
		review.BookID,
		review.UserID,
		review.Rating,
		review.Comment,
	)
	if isUniqueViolation(err, "reviews_book_user_key") {
		return ErrDuplicateReview
	}
	return err
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (models.Review, error) {
	const query = `
		SELECT id, book_id, user_id, rating, comment, created_at
		FROM reviews WHERE id = $1
	`

	var review models.Review
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&review.ID,
		&review.BookID,
		&review.UserID,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Review{}, ErrReviewNotFound
		}
		return models.Review{}, err
	}
	return review, nil
}

func (r *ReviewRepository) ListByBook(ctx context.Context, bookID string) ([]models.Review, error) {
	const query = `
		SELECT id, book_id, user_id, rating, comment, created_at
		FROM reviews
		WHERE book_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var review models.Review
		if err := rows.Scan(
			&review.ID,
			&review.BookID,
			&review.UserID,
			&review.Rating,
			&review.Comment,
			&review.CreatedAt,
		); err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

func (r *ReviewRepository) DeleteByID(ctx context.Context, id string) error {
	const query = `DELETE FROM reviews WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// AverageRating returns the mean rating and review count for a book.
func (r *ReviewRepository) AverageRating(ctx context.Context, bookID string) (float64, int, error) {
	const query = `
		SELECT COALESCE(AVG(rating), 0), COUNT(*)
		FROM reviews WHERE book_id = $1
	`

	var avg float64
	var count int
	if err := r.pool.QueryRow(ctx, query, bookID).Scan(&avg, &count); err != nil {
		return 0, 0, err
	}
	return avg, count, nil
}
