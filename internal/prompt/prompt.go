package prompt

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Template is the fixed conversation prompt. {history} receives the rendered
// history and {input} the new user message.
const Template = `The following is a friendly conversation between a human and an AI.
The AI is talkative and provides lots of specific details from its context.
If the AI does not know the answer to a question, it truthfully says it does not know.

Current conversation:
{history}
Human: {input}
AI:`

const (
	historySlot = "{history}"
	inputSlot   = "{input}"
)

// Assemble substitutes the rendered history and the user input into Template.
// Substitution is a single pass, so braces inside either value are left as-is.
func Assemble(history, input string) string {
	return strings.NewReplacer(historySlot, history, inputSlot, input).Replace(Template)
}

// Fingerprint returns a hex SHA-256 of the prompt for log and trace correlation
func Fingerprint(prompt string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	return fmt.Sprintf("%x", h.Sum(nil))
}
