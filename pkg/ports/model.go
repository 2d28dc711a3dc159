package ports

import (
	"context"

	"github.com/aretw0/braid/pkg/domain"
)

// ChatModel produces a reply for a conversation.
type ChatModel interface {
	Generate(ctx context.Context, msgs []domain.Message) (domain.Message, error)
}

// StreamingChatModel is a ChatModel that can emit its reply incrementally.
// GenerateStream calls yield once per chunk, in order, and stops early when
// yield returns an error.
type StreamingChatModel interface {
	ChatModel
	GenerateStream(ctx context.Context, msgs []domain.Message, yield func(domain.Message) error) error
}

// Retriever fetches documents relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Document, error)
}
