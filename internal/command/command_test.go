package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Action
	}{
		{"help", Action{Kind: Help}},
		{"HELP", Action{Kind: Help}},
		{"clear", Action{Kind: Clear}},
		{" clear ", Action{Kind: Clear}},
		{"\tSummary\n", Action{Kind: Summary}},
		{"save", Action{Kind: Save}},
		{"Save", Action{Kind: Save}},
		{"quit", Action{Kind: Quit}},
		{"EXIT", Action{Kind: Quit}},
		{"", Action{Kind: Empty}},
		{"   ", Action{Kind: Empty}},
		{"hello there", Action{Kind: Chat, Text: "hello there"}},
		{"  help me please ", Action{Kind: Chat, Text: "help me please"}},
		{"save the whales", Action{Kind: Chat, Text: "save the whales"}},
		{"/help", Action{Kind: Chat, Text: "/help"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.input))
		})
	}
}

func TestParseIsCaseAndSpaceInsensitive(t *testing.T) {
	assert.Equal(t, Parse("help"), Parse("HELP"))
	assert.Equal(t, Parse("clear"), Parse(" clear "))
	assert.Equal(t, Parse("save"), Parse("save"))
}

func TestIsCommand(t *testing.T) {
	assert.True(t, Parse("summary").IsCommand())
	assert.False(t, Parse("hi").IsCommand())
	assert.False(t, Parse("").IsCommand())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "quit", Quit.String())
	assert.Equal(t, "chat", Chat.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
