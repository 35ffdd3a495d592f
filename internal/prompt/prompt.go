// Package prompt builds the context block and final prompts sent to the models.
// Everything here is pure string formatting so it stays trivially testable.
package prompt

import (
	"fmt"
	"strings"

	"github.com/finki-hub/finki-chat-bot/internal/models"
)

// DefaultSystemPrompt instructs the assistant to answer in Macedonian using
// only the retrieved sources.
const DefaultSystemPrompt = "Ти си љубезен асистент и експерт за сумаризации кој одговара на прашања поврзани со ФИНКИ. " +
	"Секогаш одговарај на македонски јазик. Дај јасни, точни и концизни одговори на сите прашања " +
	"што се однесуваат на универзитетот, факултетот, студиите, административните процеси и слично. " +
	"Користи само информации од дадените извори. Ако е можно, наведи од каде е информацијата. " +
	"Ако не знаеш одговор или прашањето не е поврзано со ФИНКИ, кажи дека не си сигурен и препорачај " +
	"корисникот да се обрати во Студентската служба на ФИНКИ."

// DefaultAgentSystemPrompt extends the system prompt for the tool-using path.
const DefaultAgentSystemPrompt = DefaultSystemPrompt +
	" Имаш пристап до надворешни алатки; користи ги кога прашањето бара актуелни или пресметани податоци."

// DefaultQueryTransformSystemPrompt drives the retrieval-query rewrite. The
// rewrite is an optimization, never a correctness requirement.
const DefaultQueryTransformSystemPrompt = "Преформулирај го прашањето на корисникот во кратко пребарувачко прашање " +
	"на македонски јазик, без објаснувања. Прошири ги кратенките и задржи ги клучните поими. " +
	"Врати само преформулираното прашање."

// NoContextFallback substitutes for an empty retrieval result so generation
// always receives non-empty context.
const NoContextFallback = "Не беа пронајдени релевантни информации за ова прашање."

// Document formats one question as a standalone retrieval document, the same
// text that gets embedded and reranked.
func Document(name, content string) string {
	return fmt.Sprintf("Наслов: %s\nСодржина: %s", name, content)
}

// BuildContext concatenates questions into a single context block.
// An empty slice yields an empty string; callers decide on a fallback.
func BuildContext(questions []models.Question) string {
	lines := make([]string, 0, len(questions))
	for _, q := range questions {
		lines = append(lines, fmt.Sprintf("- Наслов: %s\n  Содржина: %s", q.Name, q.Content))
	}

	return strings.Join(lines, "\n")
}

// JoinDocuments combines already-formatted documents into a context block,
// used after reranking where only the document strings survive.
func JoinDocuments(docs []string) string {
	return strings.Join(docs, "\n\n---\n\n")
}

// BuildUserPrompt places the context before the question in the fixed template.
func BuildUserPrompt(context, prompt string) string {
	return fmt.Sprintf("Контекст:\n%s\n\nПрашање:\n%s\n\nОдговор:", context, prompt)
}

// StitchSystemUser folds the system and user prompts into a single string for
// backends that take one flat prompt instead of a message list.
func StitchSystemUser(system, userPrompt string) string {
	return fmt.Sprintf("<|system|> %s\n\n<|user|> %s\n\n<|assistant|>", system, userPrompt)
}
