package service

import (
	"context"
	"time"
)

type MonthlyLoans struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type TopBook struct {
	BookID string `json:"bookId"`
	Title  string `json:"title"`
	Loans  int    `json:"loans"`
}

type Stats struct {
	Users         int            `json:"users"`
	Books         int            `json:"books"`
	Loans         int            `json:"loans"`
	LoansPerMonth []MonthlyLoans `json:"loansPerMonth"`
	BooksPerGenre map[string]int `json:"booksPerGenre"`
	TopBorrowed   []TopBook      `json:"topBorrowed"`
}

// UserCounter is the slice of the user repository the stats view needs.
type UserCounter interface {
	Count(ctx context.Context) (int, error)
}

// Stats aggregates the counters behind the admin dashboard charts. The last
// twelve months are always present, zero-filled where no loans happened.
func (s *LibraryService) Stats(ctx context.Context, users UserCounter) (Stats, error) {
	userCount, err := users.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	bookCount, err := s.books.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	loanCount, err := s.loans.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	perGenre, err := s.books.CountByGenre(ctx)
	if err != nil {
		return Stats{}, err
	}

	const months = 12
	raw, err := s.loans.CountPerMonth(ctx, months)
	if err != nil {
		return Stats{}, err
	}

	byMonth := make(map[string]int, len(raw))
	for _, mc := range raw {
		byMonth[mc.Month.Format("2006-01")] = mc.Count
	}

	labels := monthLabels(time.Now(), months)
	perMonth := make([]MonthlyLoans, 0, months)
	for _, month := range labels {
		perMonth = append(perMonth, MonthlyLoans{Month: month, Count: byMonth[month]})
	}

	top, err := s.loans.TopBorrowed(ctx, 5)
	if err != nil {
		return Stats{}, err
	}
	topBooks := make([]TopBook, 0, len(top))
	for _, bc := range top {
		topBooks = append(topBooks, TopBook{BookID: bc.BookID, Title: bc.Title, Loans: bc.Count})
	}

	return Stats{
		Users:         userCount,
		Books:         bookCount,
		Loans:         loanCount,
		LoansPerMonth: perMonth,
		BooksPerGenre: perGenre,
		TopBorrowed:   topBooks,
	}, nil
}

// monthLabels returns the trailing n month labels ending at now's month.
// Subtraction anchors on the first of the month; AddDate on a day-31 value
// would normalize into neighbouring months and duplicate labels.
func monthLabels(now time.Time, n int) []string {
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	labels := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		labels = append(labels, anchor.AddDate(0, -i, 0).Format("2006-01"))
	}
	return labels
}
