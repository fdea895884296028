package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/api/internal/models"
)

type fakeBookSearcher struct {
	books []models.Book
	err   error
	query string
}

func (f *fakeBookSearcher) SearchByTitle(_ context.Context, title string, _ int) ([]models.Book, error) {
	f.query = title
	return f.books, f.err
}

func TestChatbotMatchesRules(t *testing.T) {
	bot := NewChatbotService(nil, nil, zerolog.Nop())

	cases := map[string]string{
		"What are your opening hours?": "open Monday to Saturday",
		"how do I become a member":     "register for free",
		"can I borrow more books":      "borrow up to 5 books",
		"my book is overdue":           "Overdue books block",
		"HELLO there":                  "Hello!",
	}

	for message, want := range cases {
		reply, err := bot.Reply(context.Background(), message)
		require.NoError(t, err)
		assert.Contains(t, reply, want, "message: %q", message)
	}
}

func TestChatbotLooksUpTitles(t *testing.T) {
	searcher := &fakeBookSearcher{
		books: []models.Book{
			{Title: "Dune", Author: "Frank Herbert"},
			{Title: "Dune Messiah", Author: "Frank Herbert"},
		},
	}
	bot := NewChatbotService(searcher, nil, zerolog.Nop())

	reply, err := bot.Reply(context.Background(), "Do you have Dune")
	require.NoError(t, err)

	assert.Equal(t, "dune", searcher.query, "leading phrase is stripped before the lookup")
	assert.Contains(t, reply, "Dune by Frank Herbert")
	assert.Contains(t, reply, "Dune Messiah by Frank Herbert")
}

func TestChatbotFallsBack(t *testing.T) {
	bot := NewChatbotService(&fakeBookSearcher{}, nil, zerolog.Nop())

	for _, message := range []string{"", "   ", "xyzzy plugh quux"} {
		reply, err := bot.Reply(context.Background(), message)
		require.NoError(t, err)
		assert.Contains(t, reply, "Sorry, I did not get that", "message: %q", message)
	}
}

func TestChatbotSearchErrorFallsBack(t *testing.T) {
	searcher := &fakeBookSearcher{err: errors.New("catalog offline")}
	bot := NewChatbotService(searcher, nil, zerolog.Nop())

	reply, err := bot.Reply(context.Background(), "find the hobbit")
	require.NoError(t, err)
	assert.Contains(t, reply, "Sorry, I did not get that")
}
