package models

import "time"

type Book struct {
	ID              string
	Title           string
	Author          string
	ISBN            string
	Genre           string
	Description     string
	CoverURL        *string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusReturned LoanStatus = "returned"
	LoanStatusOverdue  LoanStatus = "overdue"
)

type Loan struct {
	ID         string
	BookID     string
	UserID     string
	Status     LoanStatus
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
}

type Review struct {
	ID        string
	BookID    string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}
