package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"librarium/api/internal/models"
)

// BookSearcher is the slice of the book repository the chatbot needs.
type BookSearcher interface {
	SearchByTitle(ctx context.Context, title string, limit int) ([]models.Book, error)
}

type chatRule struct {
	keywords []string
	reply    string
}

var defaultRules = []chatRule{
	{
		keywords: []string{"hour", "open", "close", "opening"},
		reply:    "The library is open Monday to Saturday, 9:00 to 20:00.",
	},
	{
		keywords: []string{"member", "join", "sign up", "register", "card"},
		reply:    "You can register for free on the sign-up page; a library card is issued immediately.",
	},
	{
		keywords: []string{"borrow", "loan", "checkout", "check out"},
		reply:    "Members can borrow up to 5 books at a time for 14 days each.",
	},
	{
		keywords: []string{"return", "late", "overdue", "fine"},
		reply:    "Return books from your loans page. Overdue books block new borrowing until returned.",
	},
	{
		keywords: []string{"contact", "email", "phone", "reach"},
		reply:    "Use the contact form and a librarian will get back to you within two working days.",
	},
	{
		keywords: []string{"hello", "hi", "hey"},
		reply:    "Hello! Ask me about opening hours, membership, borrowing or a book title.",
	},
}

const fallbackReply = "Sorry, I did not get that. Try asking about opening hours, membership, borrowing, or a book title."

type ChatbotService struct {
	books BookSearcher
	cache *redis.Client
	rules []chatRule
	log   zerolog.Logger
}

func NewChatbotService(books BookSearcher, cache *redis.Client, log zerolog.Logger) *ChatbotService {
	return &ChatbotService{
		books: books,
		cache: cache,
		rules: defaultRules,
		log:   log,
	}
}

// Reply matches the message against the keyword rules, then tries a catalog
// title lookup, then falls back. Replies are cached per normalized message.
func (s *ChatbotService) Reply(ctx context.Context, message string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return fallbackReply, nil
	}

	cacheKey := fmt.Sprintf("chatbot:%s", normalized)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			return cached, nil
		}
	}

	reply := s.matchRules(normalized)
	if reply == "" {
		reply = s.lookupTitle(ctx, normalized)
	}
	if reply == "" {
		reply = fallbackReply
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, reply, time.Hour).Err(); err != nil {
			s.log.Debug().Err(err).Msg("chatbot cache set failed")
		}
	}

	return reply, nil
}

func (s *ChatbotService) matchRules(normalized string) string {
	for _, rule := range s.rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(normalized, keyword) {
				return rule.reply
			}
		}
	}
	return ""
}

func (s *ChatbotService) lookupTitle(ctx context.Context, normalized string) string {
	query := normalized
	for _, prefix := range []string{"do you have", "is there", "find", "search"} {
		if strings.HasPrefix(query, prefix) {
			query = strings.TrimSpace(strings.TrimPrefix(query, prefix))
			break
		}
	}
	if len(query) < 3 || s.books == nil {
		return ""
	}

	books, err := s.books.SearchByTitle(ctx, query, 3)
	if err != nil {
		s.log.Warn().Err(err).Msg("chatbot title lookup failed")
		return ""
	}
	if len(books) == 0 {
		return ""
	}

	titles := make([]string, 0, len(books))
	for _, book := range books {
		titles = append(titles, fmt.Sprintf("%s by %s", book.Title, book.Author))
	}
	return fmt.Sprintf("We have these matching titles: %s.", strings.Join(titles, ", "))
}
