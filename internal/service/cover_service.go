package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"librarium/api/internal/config"
	"librarium/api/internal/media/sniffer"
	"librarium/api/internal/models"
	"librarium/api/internal/repository"
	"librarium/api/internal/security"
	"librarium/api/internal/storage"
)

const maxCoverBytes = 5 << 20

var (
	ErrCoverTooLarge   = errors.New("cover exceeds size limit")
	ErrCoverBadFormat  = errors.New("cover must be jpeg, png, gif or webp")
	ErrCoverTypeMangle = errors.New("declared content type does not match file")
)

type CoverService struct {
	books *repository.BookRepository
	store *storage.ObjectStore
	cfg   *config.AppConfig
	log   zerolog.Logger
}

func NewCoverService(books *repository.BookRepository, store *storage.ObjectStore, cfg *config.AppConfig, log zerolog.Logger) *CoverService {
	return &CoverService{
		books: books,
		store: store,
		cfg:   cfg,
		log:   log,
	}
}

// Upload sniffs the real file type, stores the cover and records its signed
// URL on the book. The declared Content-Type must agree with the magic bytes.
func (s *CoverService) Upload(ctx context.Context, bookID string, file multipart.File, header *multipart.FileHeader) (models.Book, error) {
	if file == nil || header == nil {
		return models.Book{}, errors.New("invalid file payload")
	}
	if header.Size > maxCoverBytes {
		return models.Book{}, ErrCoverTooLarge
	}

	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return models.Book{}, err
	}

	data, err := io.ReadAll(io.LimitReader(file, maxCoverBytes+1))
	if err != nil {
		return models.Book{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxCoverBytes {
		return models.Book{}, ErrCoverTooLarge
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	result, err := sniffer.DetectHead(head)
	if err != nil {
		return models.Book{}, ErrCoverBadFormat
	}

	declared := sniffer.MimeTypeFromHTTP(http.Header(header.Header))
	if declared != "" && declared != result.MIME {
		return models.Book{}, ErrCoverTypeMangle
	}

	objectKey := fmt.Sprintf("%s/cover.%s", book.ID, result.Type)
	url, err := s.store.PutCover(ctx, objectKey, bytes.NewReader(data), int64(len(data)), result.MIME)
	if err != nil {
		return models.Book{}, fmt.Errorf("store cover: %w", err)
	}

	signature := security.SignResource(s.cfg.Security.ResourceSecret, book.ID, objectKey)
	signedURL := fmt.Sprintf("%s?sig=%s", url, signature)

	if err := s.books.UpdateCoverURL(ctx, book.ID, signedURL); err != nil {
		if removeErr := s.store.RemoveCover(ctx, objectKey); removeErr != nil {
			s.log.Warn().Err(removeErr).Str("book_id", book.ID).Msg("orphaned cover cleanup failed")
		}
		return models.Book{}, err
	}

	s.removeStaleCover(ctx, book, objectKey)

	book.CoverURL = &signedURL
	return book, nil
}

// removeStaleCover deletes the prior cover object after a re-upload changed
// the file extension. The stored URL is only trusted for a delete when its
// signature verifies.
func (s *CoverService) removeStaleCover(ctx context.Context, book models.Book, newKey string) {
	if book.CoverURL == nil {
		return
	}

	oldKey, signature, ok := coverObjectKey(*book.CoverURL)
	if !ok || oldKey == newKey {
		return
	}
	if !security.VerifyResource(s.cfg.Security.ResourceSecret, signature, book.ID, oldKey) {
		s.log.Warn().Str("book_id", book.ID).Msg("stored cover url failed signature check")
		return
	}

	if err := s.store.RemoveCover(ctx, oldKey); err != nil {
		s.log.Warn().Err(err).Str("book_id", book.ID).Msg("stale cover removal failed")
	}
}

// coverObjectKey splits a stored cover URL of the form
// {base}/{bucket}/{objectKey}?sig={signature} back into key and signature.
func coverObjectKey(rawURL string) (string, string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	return parts[1], u.Query().Get("sig"), true
}
