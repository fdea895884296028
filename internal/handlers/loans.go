package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"librarium/api/internal/middleware"
	"librarium/api/internal/models"
	"librarium/api/internal/repository"
	"librarium/api/internal/service"
)

type loanResponse struct {
	ID         string     `json:"id"`
	BookID     string     `json:"bookId"`
	UserID     string     `json:"userId"`
	Status     string     `json:"status"`
	BorrowedAt time.Time  `json:"borrowedAt"`
	DueAt      time.Time  `json:"dueAt"`
	ReturnedAt *time.Time `json:"returnedAt"`
}

func (h HandlerSet) BorrowBook(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	loan, err := h.libraryService.Borrow(c.Request.Context(), claims.UserID, c.Param("bookId"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "book_not_found"})
		case errors.Is(err, repository.ErrNoCopiesLeft):
			c.JSON(http.StatusConflict, gin.H{"error": "no_copies_available"})
		case errors.Is(err, repository.ErrAlreadyBorrowed):
			c.JSON(http.StatusConflict, gin.H{"error": "already_borrowed"})
		case errors.Is(err, service.ErrLoanLimit):
			c.JSON(http.StatusConflict, gin.H{"error": "loan_limit_reached"})
		default:
			h.log.Error().Err(err).Msg("borrow failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"loan": toLoanResponse(loan)})
}

func (h HandlerSet) ReturnLoan(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	isAdmin := models.UserRole(claims.Role) == models.UserRoleAdmin
	loan, err := h.libraryService.Return(c.Request.Context(), claims.UserID, c.Param("loanId"), isAdmin)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLoanNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "loan_not_found"})
		case errors.Is(err, repository.ErrLoanAlreadyClosed):
			c.JSON(http.StatusConflict, gin.H{"error": "loan_already_returned"})
		case errors.Is(err, service.ErrLoanNotOwned):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			h.log.Error().Err(err).Msg("return failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"loan": toLoanResponse(loan)})
}

func (h HandlerSet) ListMyLoans(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	loans, err := h.libraryService.ListUserLoans(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("list loans failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	items := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		items = append(items, toLoanResponse(loan))
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func toLoanResponse(loan models.Loan) loanResponse {
	return loanResponse{
		ID:         loan.ID,
		BookID:     loan.BookID,
		UserID:     loan.UserID,
		Status:     string(loan.Status),
		BorrowedAt: loan.BorrowedAt,
		DueAt:      loan.DueAt,
		ReturnedAt: loan.ReturnedAt,
	}
}
