package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ask-vadym/internal/domain"
)

const defaultMaxMessageLen = 1000

// Completer opens a streaming completion session with the upstream provider.
// Each call is a fresh session; the returned stream is not restartable.
type Completer interface {
	StreamChat(ctx context.Context, model string, messages []domain.ChatMessage) (domain.CompletionStream, error)
}

// Limiter decides whether one more request from the given client identity
// fits in the active rate-limit window, consuming a slot when it does.
type Limiter interface {
	Allow(identity string) bool
}

// ChatService is the request pipeline: validation, rate limiting, prompt
// assembly, and the upstream streaming call, in that order.
type ChatService struct {
	llm           Completer
	limiter       Limiter
	persona       string
	model         string
	maxMessageLen int
}

type ChatInput struct {
	Message  string
	ClientID string
}

func NewChatService(llm Completer, limiter Limiter, persona, model string, maxMessageLen int) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: limiter must not be nil")
	}
	if strings.TrimSpace(persona) == "" {
		return nil, errors.New("usecase: persona prompt must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &ChatService{
		llm:           llm,
		limiter:       limiter,
		persona:       persona,
		model:         model,
		maxMessageLen: maxMessageLen,
	}, nil
}

// Chat validates the message, consumes one rate-limit slot, and opens the
// upstream completion stream. The caller owns the returned stream and must
// Close it on every exit path. Validation runs before the limiter so a
// malformed request never burns quota.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (domain.CompletionStream, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, newError(ErrorInvalidInput, "message must not be empty", nil)
	}
	if utf8.RuneCountInString(in.Message) > s.maxMessageLen {
		return nil, newError(ErrorMessageTooLong,
			fmt.Sprintf("message must be at most %d characters", s.maxMessageLen), nil)
	}
	if !s.limiter.Allow(in.ClientID) {
		return nil, newError(ErrorRateLimited, "rate limit exceeded", nil)
	}

	stream, err := s.llm.StreamChat(ctx, s.model, buildPromptMessages(s.persona, in.Message))
	if err != nil {
		return nil, newError(ErrorUpstream, "completion_stream_error", err)
	}
	return stream, nil
}
