// Package command classifies interactive input lines into local commands and
// chat turns.
package command

import "strings"

// Kind is the classification of one input line
type Kind int

const (
	Empty Kind = iota
	Chat
	Help
	Clear
	Summary
	Save
	Quit
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Chat:
		return "chat"
	case Help:
		return "help"
	case Clear:
		return "clear"
	case Summary:
		return "summary"
	case Save:
		return "save"
	case Quit:
		return "quit"
	}
	return "unknown"
}

// Action is the result of parsing an input line. Text is only set for Chat.
type Action struct {
	Kind Kind
	Text string
}

// IsCommand reports whether the action runs locally
func (a Action) IsCommand() bool {
	return a.Kind != Chat && a.Kind != Empty
}

var keywords = map[string]Kind{
	"help":    Help,
	"clear":   Clear,
	"summary": Summary,
	"save":    Save,
	"quit":    Quit,
	"exit":    Quit,
}

// Parse classifies input. Keywords match case-insensitively after trimming
// surrounding whitespace; anything else that is not blank is a chat turn.
func Parse(input string) Action {
	text := strings.TrimSpace(input)
	if text == "" {
		return Action{Kind: Empty}
	}
	if kind, ok := keywords[strings.ToLower(text)]; ok {
		return Action{Kind: kind}
	}
	return Action{Kind: Chat, Text: text}
}

// HelpText lists the available commands
const HelpText = `Available commands:
  help        - Show this help message
  clear       - Clear conversation history
  summary     - Show conversation summary
  save        - Save conversation to file
  quit/exit   - Exit the chatbot`
