package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"librarium/api/internal/models"
	"librarium/api/internal/repository"
	"librarium/api/internal/service"
)

type bookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	ISBN        string `json:"isbn" binding:"required"`
	Genre       string `json:"genre" binding:"required"`
	Description string `json:"description"`
	TotalCopies int    `json:"totalCopies" binding:"required,min=1"`
}

type bookResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Genre           string    `json:"genre"`
	Description     string    `json:"description"`
	CoverURL        *string   `json:"coverUrl"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (h HandlerSet) ListBooks(c *gin.Context) {
	filter := repository.BookFilter{
		Genre:  c.Query("genre"),
		Search: c.Query("search"),
		Limit:  50,
		Offset: 0,
	}

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			filter.Limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			filter.Offset = (v - 1) * filter.Limit
		}
	}

	books, err := h.libraryService.ListBooks(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("list books failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	items := make([]bookResponse, 0, len(books))
	for _, book := range books {
		items = append(items, toBookResponse(book))
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) GetBook(c *gin.Context) {
	bookID := c.Param("bookId")

	book, err := h.libraryService.GetBook(c.Request.Context(), bookID)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "book_not_found"})
			return
		}
		h.log.Error().Err(err).Msg("get book failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	rating, err := h.libraryService.BookRating(c.Request.Context(), bookID)
	if err != nil {
		h.log.Warn().Err(err).Str("book_id", bookID).Msg("rating lookup failed")
	}

	c.JSON(http.StatusOK, gin.H{
		"book":   toBookResponse(book),
		"rating": rating,
	})
}

func (h HandlerSet) CreateBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.libraryService.CreateBook(c.Request.Context(), service.BookInput{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Genre:       req.Genre,
		Description: req.Description,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateISBN) {
			c.JSON(http.StatusConflict, gin.H{"error": "isbn_taken"})
			return
		}
		h.log.Error().Err(err).Msg("create book failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"book": toBookResponse(book)})
}

func (h HandlerSet) UpdateBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.libraryService.UpdateBook(c.Request.Context(), c.Param("bookId"), service.BookInput{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Genre:       req.Genre,
		Description: req.Description,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "book_not_found"})
		case errors.Is(err, repository.ErrCopiesOnLoan):
			c.JSON(http.StatusConflict, gin.H{"error": "copies_on_loan"})
		case errors.Is(err, repository.ErrDuplicateISBN):
			c.JSON(http.StatusConflict, gin.H{"error": "isbn_taken"})
		default:
			h.log.Error().Err(err).Msg("update book failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"book": toBookResponse(book)})
}

func (h HandlerSet) DeleteBook(c *gin.Context) {
	err := h.libraryService.DeleteBook(c.Request.Context(), c.Param("bookId"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "book_not_found"})
		case errors.Is(err, repository.ErrCopiesOnLoan):
			c.JSON(http.StatusConflict, gin.H{"error": "copies_on_loan"})
		default:
			h.log.Error().Err(err).Msg("delete book failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) UploadCover(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	book, err := h.coverService.Upload(c.Request.Context(), c.Param("bookId"), file, header)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "book_not_found"})
		case errors.Is(err, service.ErrCoverTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "cover_too_large"})
		case errors.Is(err, service.ErrCoverBadFormat), errors.Is(err, service.ErrCoverTypeMangle):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_cover_format"})
		default:
			h.log.Error().Err(err).Msg("cover upload failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"book": toBookResponse(book)})
}

func toBookResponse(book models.Book) bookResponse {
	return bookResponse{
		ID:              book.ID,
		Title:           book.Title,
		Author:          book.Author,
		ISBN:            book.ISBN,
		Genre:           book.Genre,
		Description:     book.Description,
		CoverURL:        book.CoverURL,
		TotalCopies:     book.TotalCopies,
		AvailableCopies: book.AvailableCopies,
		CreatedAt:       book.CreatedAt,
	}
}
