package usecase

import "ask-vadym/internal/domain"

// buildPromptMessages assembles the single-turn prompt: the persona text as
// the system message and the current question as the only user message. No
// prior turns are retained.
func buildPromptMessages(persona, question string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: persona},
		{Role: domain.RoleUser, Content: question},
	}
}
