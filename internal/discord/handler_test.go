package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		prefix  string
		want    bool
	}{
		{"command with prefix", "-join", "-", true},
		{"command with arguments", "-voice speed 80", "-", true},
		{"plain chat", "おはよう", "-", false},
		{"bare prefix", "-", "-", false},
		{"empty content", "", "-", false},
		{"prefix mid-message", "a-b", "-", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCommand(tt.content, tt.prefix))
		})
	}
}
