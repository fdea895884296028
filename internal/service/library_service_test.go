package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/api/internal/models"
	"librarium/api/internal/repository"
)

func TestCreateReviewRejectsOutOfRangeRating(t *testing.T) {
	svc := NewLibraryService(nil, nil, nil, nil, nil, zerolog.Nop())

	for _, rating := range []int{-1, 0, 6, 100} {
		_, err := svc.CreateReview(context.Background(), "user-1", "book-1", rating, "nope")
		assert.ErrorIs(t, err, ErrInvalidRating, "rating %d", rating)
	}
}

func TestUpdateBookRefusesShrinkBelowLoans(t *testing.T) {
	// Five copies total, two on the shelf: three are out on loan.
	books := &stubBookStore{book: models.Book{ID: "book-1", TotalCopies: 5, AvailableCopies: 2}}
	svc := NewLibraryService(books, nil, nil, nil, testConfig(), zerolog.Nop())

	input := BookInput{Title: "Dune", Author: "Herbert", ISBN: "isbn-1", Genre: "scifi", TotalCopies: 2}
	_, err := svc.UpdateBook(context.Background(), "book-1", input)
	assert.ErrorIs(t, err, repository.ErrCopiesOnLoan)
	assert.Nil(t, books.updated)

	// Matching the outstanding count exactly is allowed.
	input.TotalCopies = 3
	_, err = svc.UpdateBook(context.Background(), "book-1", input)
	require.NoError(t, err)
	require.NotNil(t, books.updated)
	assert.Equal(t, 3, books.updated.TotalCopies)
}

func TestBorrowRefusesOverLimit(t *testing.T) {
	cfg := testConfig()
	loans := &stubLoanStore{active: cfg.Library.MaxActiveLoans}
	svc := NewLibraryService(&stubBookStore{}, loans, nil, nil, cfg, zerolog.Nop())

	_, err := svc.Borrow(context.Background(), "user-1", "book-1")
	assert.ErrorIs(t, err, ErrLoanLimit)
	assert.False(t, loans.borrowed)
}
