package usecase

import (
	"context"
	"strings"

	"pdfrag/internal/domain"
)

// StorePrefix marks chat input to be stored rather than answered.
// Matching is case-insensitive.
const StorePrefix = "store:"

// StoredMessage is the chat reply after storing input.
const StoredMessage = "Stored your input in the knowledge base."

type TextIngester interface {
	IngestText(ctx context.Context, text, source string) (*IngestResult, error)
}

type QuestionAnswerer interface {
	Answer(ctx context.Context, question string) (*domain.Answer, error)
}

// ChatReply carries either an answer or a confirmation message.
type ChatReply struct {
	Answer  string               `json:"answer,omitempty"`
	Message string               `json:"message,omitempty"`
	Sources []domain.ScoredEntry `json:"-"`
}

// Chat routes one line of user input to storage or to question answering.
type Chat struct {
	ingester TextIngester
	answerer QuestionAnswerer
}

func NewChat(ingester TextIngester, answerer QuestionAnswerer) *Chat {
	return &Chat{ingester: ingester, answerer: answerer}
}

func (c *Chat) Handle(ctx context.Context, input string) (*ChatReply, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, domain.Errorf(domain.KindValidation, "input is empty")
	}

	if rest, ok := cutStorePrefix(text); ok {
		if rest == "" {
			return nil, domain.Errorf(domain.KindValidation, "nothing to store after %q", StorePrefix)
		}
		if _, err := c.ingester.IngestText(ctx, rest, ChatSource); err != nil {
			return nil, err
		}
		return &ChatReply{Message: StoredMessage}, nil
	}

	answer, err := c.answerer.Answer(ctx, text)
	if err != nil {
		return nil, err
	}
	return &ChatReply{Answer: answer.Text, Sources: answer.Sources}, nil
}

func cutStorePrefix(text string) (string, bool) {
	if len(text) < len(StorePrefix) || !strings.EqualFold(text[:len(StorePrefix)], StorePrefix) {
		return "", false
	}
	return strings.TrimSpace(text[len(StorePrefix):]), true
}
