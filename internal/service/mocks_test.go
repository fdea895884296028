package service

import (
	"context"
	"sync"

	"librarium/api/internal/models"
	"librarium/api/internal/repository"
)

type mockUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]models.User)}
}

func (m *mockUserStore) Create(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *mockUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStore) UpdatePasswordHash(_ context.Context, id string, passwordHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	m.users[id] = user
	return nil
}

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]models.Session)}
}

func (m *mockSessionStore) Create(_ context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionStore) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, session := range m.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (m *mockSessionStore) CountByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, session := range m.sessions {
		if session.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *mockSessionStore) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionStore) DeleteAllByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, session := range m.sessions {
		if session.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *mockSessionStore) DeleteOldestSessions(_ context.Context, userID string, keepLatest int) error {
	// Eviction order is irrelevant to these tests.
	return nil
}

func (m *mockSessionStore) Rotate(_ context.Context, oldID string, replacement models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[oldID]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.sessions, oldID)
	m.sessions[replacement.ID] = replacement
	return nil
}

func (m *mockSessionStore) get(id string) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	return session, ok
}

func (m *mockSessionStore) put(session models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
}

func (m *mockSessionStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type mockResetStore struct {
	mu     sync.Mutex
	resets map[string]models.PasswordReset
}

func newMockResetStore() *mockResetStore {
	return &mockResetStore{resets: make(map[string]models.PasswordReset)}
}

func (m *mockResetStore) Create(_ context.Context, reset models.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.resets {
		if existing.UserID == reset.UserID {
			delete(m.resets, id)
		}
	}
	m.resets[reset.ID] = reset
	return nil
}

func (m *mockResetStore) FindByTokenHash(_ context.Context, tokenHash []byte) (models.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reset := range m.resets {
		if string(reset.TokenHash) == string(tokenHash) {
			return reset, nil
		}
	}
	return models.PasswordReset{}, repository.ErrResetNotFound
}

func (m *mockResetStore) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resets[id]; !ok {
		return repository.ErrResetNotFound
	}
	delete(m.resets, id)
	return nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

type stubBookStore struct {
	book    models.Book
	getErr  error
	count   int
	genres  map[string]int
	updated *models.Book
}

func (s *stubBookStore) Create(context.Context, models.Book) error { return nil }

func (s *stubBookStore) GetByID(context.Context, string) (models.Book, error) {
	if s.getErr != nil {
		return models.Book{}, s.getErr
	}
	return s.book, nil
}

func (s *stubBookStore) List(context.Context, repository.BookFilter) ([]models.Book, error) {
	return nil, nil
}

func (s *stubBookStore) Update(_ context.Context, book models.Book) error {
	s.updated = &book
	return nil
}

func (s *stubBookStore) Delete(context.Context, string) error { return nil }

func (s *stubBookStore) Count(context.Context) (int, error) { return s.count, nil }

func (s *stubBookStore) CountByGenre(context.Context) (map[string]int, error) {
	return s.genres, nil
}

type stubLoanStore struct {
	perMonth []repository.MonthCount
	top      []repository.BookCount
	active   int
	count    int
	borrowed bool
}

func (s *stubLoanStore) Borrow(context.Context, models.Loan) error {
	s.borrowed = true
	return nil
}

func (s *stubLoanStore) Return(_ context.Context, loanID string) (models.Loan, error) {
	return models.Loan{ID: loanID}, nil
}

func (s *stubLoanStore) GetByID(context.Context, string) (models.Loan, error) {
	return models.Loan{}, nil
}

func (s *stubLoanStore) ListByUser(context.Context, string) ([]models.Loan, error) {
	return nil, nil
}

func (s *stubLoanStore) List(context.Context, int, int) ([]models.Loan, error) {
	return nil, nil
}

func (s *stubLoanStore) CountActiveByUser(context.Context, string) (int, error) {
	return s.active, nil
}

func (s *stubLoanStore) Count(context.Context) (int, error) { return s.count, nil }

func (s *stubLoanStore) CountPerMonth(context.Context, int) ([]repository.MonthCount, error) {
	return s.perMonth, nil
}

func (s *stubLoanStore) TopBorrowed(context.Context, int) ([]repository.BookCount, error) {
	return s.top, nil
}

type stubUserCounter struct{ n int }

func (s stubUserCounter) Count(context.Context) (int, error) { return s.n, nil }
