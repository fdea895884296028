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

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

type reviewResponse struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h HandlerSet) CreateReview(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	review, err := h.libraryService.CreateReview(c.Request.Context(), claims.UserID, c.Param("bookId"), req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "book_not_found"})
		case errors.Is(err, repository.ErrDuplicateReview):
			c.JSON(http.StatusConflict, gin.H{"error": "already_reviewed"})
		case errors.Is(err, service.ErrInvalidRating):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rating"})
		default:
			h.log.Error().Err(err).Msg("create review failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"review": toReviewResponse(review)})
}

func (h HandlerSet) ListReviews(c *gin.Context) {
	reviews, err := h.libraryService.ListReviews(c.Request.Context(), c.Param("bookId"))
	if err != nil {
		h.log.Error().Err(err).Msg("list reviews failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	items := make([]reviewResponse, 0, len(reviews))
	for _, review := range reviews {
		items = append(items, toReviewResponse(review))
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) DeleteReview(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	isAdmin := models.UserRole(claims.Role) == models.UserRoleAdmin
	if err := h.libraryService.DeleteReview(c.Request.Context(), claims.UserID, c.Param("reviewId"), isAdmin); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "review_not_found"})
			return
		}
		h.log.Error().Err(err).Msg("delete review failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.Status(http.StatusNoContent)
}

func toReviewResponse(review models.Review) reviewResponse {
	return reviewResponse{
		ID:        review.ID,
		BookID:    review.BookID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt,
	}
}
