package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestModerator(t *testing.T, words ...string) *Moderator {
	mod, err := NewModerator(words, '*', logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	return mod
}

func TestModerator_Censors_Direct_Message_Bodies(t *testing.T) {
	mod := newTestModerator(t, "idiot", "loser", "scam")

	tests := []struct {
		name    string
		body    string
		content string
		words   []string
	}{
		{
			name:    "insult inside a sentence keeps punctuation",
			body:    "hey you idiot, call me",
			content: "hey you *****, call me",
			words:   []string{"idiot"},
		},
		{
			name:    "leet spelling",
			body:    "ur such a l0$3r",
			content: "ur such a *****",
			words:   []string{"loser"},
		},
		{
			name:    "dotted spelling is masked end to end",
			body:    "total s.c.a.m, do not pay",
			content: "total *******, do not pay",
			words:   []string{"scam"},
		},
		{
			name:    "several words in order of appearance",
			body:    "IDIOT loser",
			content: "***** *****",
			words:   []string{"idiot", "loser"},
		},
		{
			name:    "accents around a match survive",
			body:    "t'es un idiot, désolé",
			content: "t'es un *****, désolé",
			words:   []string{"idiot"},
		},
		{
			name:    "clean message",
			body:    "see you at the gallery",
			content: "see you at the gallery",
		},
		{
			name: "empty body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)

			// When a direct message body goes through moderation
			content, words := mod.Censor(tt.body)

			// Then matches are masked rune for rune and reported
			req.Equal(tt.content, content)
			req.Equal(tt.words, words)
			req.Equal(len([]rune(tt.body)), len([]rune(content)))
		})
	}
}

func TestModerator_Skips_Noise_Only_Words(t *testing.T) {
	req := require.New(t)

	// Given a word list polluted with entries that normalize to nothing
	mod := newTestModerator(t, "...", "--", "", "   ", "idiot")

	// When a message only carries punctuation
	content, words := mod.Censor("wait... -- ok")

	// Then nothing is masked
	req.Equal("wait... -- ok", content)
	req.Nil(words)

	// And the real entry still matches
	content, words = mod.Censor("idiot...")
	req.Equal("*****...", content)
	req.Equal([]string{"idiot"}, words)
}
