package moderation

import (
	"log/slog"
	"profilebook/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestCensoredLoader_LoadAll(t *testing.T) {
	req := require.New(t)
	folder := fstest.MapFS{
		"words/en.txt": {Data: []byte("badger\r\nsnake\n\n  badger  \n")},
		"words/fr.txt": {Data: []byte("blaireau\n")},
	}

	data, err := NewCensoredLoader(folder).LoadAll("words")
	req.NoError(err)
	req.ElementsMatch([]string{"badger", "snake", "blaireau"}, data.Words)
	req.Equal([]string{"en", "fr"}, data.Languages)
}

func TestCensoredLoader_Empty(t *testing.T) {
	req := require.New(t)
	folder := fstest.MapFS{"words/en.txt": {Data: []byte("\n\n")}}

	_, err := NewCensoredLoader(folder).LoadAll("words")
	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestDefaultModerator_Censors_Embedded_Words(t *testing.T) {
	req := require.New(t)
	mod, err := NewDefaultModerator('*', slog.Default())
	req.NoError(err)

	content, words := mod.Censor("you are an idiot")
	req.Equal("you are an *****", content)
	req.Equal([]string{"idiot"}, words)
}
