package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"librarium/api/internal/config"
	"librarium/api/internal/ids"
	"librarium/api/internal/models"
	"librarium/api/internal/repository"
)

var (
	ErrLoanNotOwned  = errors.New("loan belongs to another user")
	ErrLoanLimit     = errors.New("active loan limit reached")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

type BookStore interface {
	Create(ctx context.Context, book models.Book) error
	GetByID(ctx context.Context, id string) (models.Book, error)
	List(ctx context.Context, filter repository.BookFilter) ([]models.Book, error)
	Update(ctx context.Context, book models.Book) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	CountByGenre(ctx context.Context) (map[string]int, error)
}

type LoanStore interface {
	Borrow(ctx context.Context, loan models.Loan) error
	Return(ctx context.Context, loanID string) (models.Loan, error)
	GetByID(ctx context.Context, id string) (models.Loan, error)
	ListByUser(ctx context.Context, userID string) ([]models.Loan, error)
	List(ctx context.Context, limit int, offset int) ([]models.Loan, error)
	CountActiveByUser(ctx context.Context, userID string) (int, error)
	Count(ctx context.Context) (int, error)
	CountPerMonth(ctx context.Context, months int) ([]repository.MonthCount, error)
	TopBorrowed(ctx context.Context, limit int) ([]repository.BookCount, error)
}

type ReviewStore interface {
	Create(ctx context.Context, review models.Review) error
	GetByID(ctx context.Context, id string) (models.Review, error)
	ListByBook(ctx context.Context, bookID string) ([]models.Review, error)
	DeleteByID(ctx context.Context, id string) error
	AverageRating(ctx context.Context, bookID string) (float64, int, error)
}

type LibraryService struct {
	books   BookStore
	loans   LoanStore
	reviews ReviewStore
	cache   *redis.Client
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewLibraryService(
	books BookStore,
	loans LoanStore,
	reviews ReviewStore,
	cache *redis.Client,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *LibraryService {
	return &LibraryService{
		books:   books,
		loans:   loans,
		reviews: reviews,
		cache:   cache,
		cfg:     cfg,
		log:     log,
	}
}

type BookInput struct {
	Title       string
	Author      string
	ISBN        string
	Genre       string
	Description string
	TotalCopies int
}

func (s *LibraryService) CreateBook(ctx context.Context, input BookInput) (models.Book, error) {
	book := models.Book{
		ID:              ids.New(),
		Title:           input.Title,
		Author:          input.Author,
		ISBN:            input.ISBN,
		Genre:           input.Genre,
		Description:     input.Description,
		TotalCopies:     input.TotalCopies,
		AvailableCopies: input.TotalCopies,
	}

	if err := s.books.Create(ctx, book); err != nil {
		return models.Book{}, err
	}
	return book, nil
}

func (s *LibraryService) UpdateBook(ctx context.Context, id string, input BookInput) (models.Book, error) {
	existing, err := s.books.GetByID(ctx, id)
	if err != nil {
		return models.Book{}, err
	}

	// Copies currently out on loan set the floor for total_copies.
	if onLoan := existing.TotalCopies - existing.AvailableCopies; input.TotalCopies < onLoan {
		return models.Book{}, repository.ErrCopiesOnLoan
	}

	book := models.Book{
		ID:          id,
		Title:       input.Title,
		Author:      input.Author,
		ISBN:        input.ISBN,
		Genre:       input.Genre,
		Description: input.Description,
		TotalCopies: input.TotalCopies,
	}

	if err := s.books.Update(ctx, book); err != nil {
		return models.Book{}, err
	}
	return s.books.GetByID(ctx, id)
}

func (s *LibraryService) DeleteBook(ctx context.Context, id string) error {
	return s.books.Delete(ctx, id)
}

func (s *LibraryService) GetBook(ctx context.Context, id string) (models.Book, error) {
	return s.books.GetByID(ctx, id)
}

func (s *LibraryService) ListBooks(ctx context.Context, filter repository.BookFilter) ([]models.Book, error) {
	return s.books.List(ctx, filter)
}

// Borrow checks the per-user loan cap, then lets the repository perform the
// copy decrement and insert transactionally.
func (s *LibraryService) Borrow(ctx context.Context, userID string, bookID string) (models.Loan, error) {
	active, err := s.loans.CountActiveByUser(ctx, userID)
	if err != nil {
		return models.Loan{}, err
	}
	if active >= s.cfg.Library.MaxActiveLoans {
		return models.Loan{}, ErrLoanLimit
	}

	loan := models.Loan{
		ID:     ids.New(),
		BookID: bookID,
		UserID: userID,
		Status: models.LoanStatusActive,
		DueAt:  time.Now().Add(s.cfg.Library.LoanPeriod),
	}

	if err := s.loans.Borrow(ctx, loan); err != nil {
		return models.Loan{}, err
	}
	return loan, nil
}

func (s *LibraryService) Return(ctx context.Context, userID string, loanID string, isAdmin bool) (models.Loan, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	if !isAdmin && loan.UserID != userID {
		return models.Loan{}, ErrLoanNotOwned
	}

	return s.loans.Return(ctx, loanID)
}

func (s *LibraryService) ListUserLoans(ctx context.Context, userID string) ([]models.Loan, error) {
	return s.loans.ListByUser(ctx, userID)
}

func (s *LibraryService) ListLoans(ctx context.Context, limit int, offset int) ([]models.Loan, error) {
	return s.loans.List(ctx, limit, offset)
}

func (s *LibraryService) CreateReview(ctx context.Context, userID string, bookID string, rating int, comment string) (models.Review, error) {
	if rating < 1 || rating > 5 {
		return models.Review{}, ErrInvalidRating
	}

	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return models.Review{}, err
	}

	review := models.Review{
		ID:      ids.New(),
		BookID:  bookID,
		UserID:  userID,
		Rating:  rating,
		Comment: comment,
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		return models.Review{}, err
	}

	s.invalidateRating(ctx, bookID)
	return review, nil
}

func (s *LibraryService) ListReviews(ctx context.Context, bookID string) ([]models.Review, error) {
	return s.reviews.ListByBook(ctx, bookID)
}

func (s *LibraryService) DeleteReview(ctx context.Context, userID string, reviewID string, isAdmin bool) error {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if !isAdmin && review.UserID != userID {
		return repository.ErrReviewNotFound
	}

	if err := s.reviews.DeleteByID(ctx, reviewID); err != nil {
		return err
	}
	s.invalidateRating(ctx, review.BookID)
	return nil
}

type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// BookRating serves the aggregate from redis when present; a miss falls
// through to SQL and repopulates the cache.
func (s *LibraryService) BookRating(ctx context.Context, bookID string) (Rating, error) {
	key := ratingKey(bookID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			var rating Rating
			if err := json.Unmarshal([]byte(cached), &rating); err == nil {
				return rating, nil
			}
		}
	}

	avg, count, err := s.reviews.AverageRating(ctx, bookID)
	if err != nil {
		return Rating{}, err
	}
	rating := Rating{Average: avg, Count: count}

	if s.cache != nil {
		if encoded, err := json.Marshal(rating); err == nil {
			if err := s.cache.Set(ctx, key, encoded, 10*time.Minute).Err(); err != nil {
				s.log.Debug().Err(err).Str("book_id", bookID).Msg("rating cache set failed")
			}
		}
	}

	return rating, nil
}

func (s *LibraryService) invalidateRating(ctx context.Context, bookID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, ratingKey(bookID)).Err(); err != nil {
		s.log.Debug().Err(err).Str("book_id", bookID).Msg("rating cache invalidation failed")
	}
}

func ratingKey(bookID string) string {
	return fmt.Sprintf("rating:%s", bookID)
}
