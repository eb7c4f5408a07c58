package util

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	t.Parallel()

	t.Run("strips control and invisible characters", func(t *testing.T) {
		actual, err := CleanText(" hi\u200B there\x07\nsecond line ", 0)
		require.NoError(t, err)
		require.Equal(t, "hi there\nsecond line", actual)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		_, err := CleanText("   ", 10)
		require.Error(t, err)

		_, err = CleanText("\u200B\uFEFF", 10)
		require.Error(t, err)
	})

	t.Run("truncates by runes", func(t *testing.T) {
		actual, err := CleanText(strings.Repeat("é", 20), 5)
		require.NoError(t, err)
		require.Equal(t, "ééééé", actual)
		require.True(t, utf8.ValidString(actual))
	})

	t.Run("keeps emoji joiners", func(t *testing.T) {
		family := "\U0001F468\u200D\U0001F469\u200D\U0001F467"
		actual, err := CleanText(family, 0)
		require.NoError(t, err)
		require.Equal(t, family, actual)
	})
}

func TestCleanLine(t *testing.T) {
	assert.Equal(t, "Studio Nine", CleanLine("  Studio\u200B Nine\n", 40))
	assert.Equal(t, "", CleanLine("   ", 40))
	assert.Equal(t, "abc", CleanLine("abcdef", 3))
}

func TestSniffMIME(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 600))

	mimeType, replay, err := SniffMIME(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)

	all, err := io.ReadAll(replay)
	require.NoError(t, err)
	assert.Equal(t, png, all)

	mimeType, _, err = SniffMIME(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.False(t, IsImageMIME(mimeType))
}

func TestAvatarTypes(t *testing.T) {
	assert.True(t, IsAvatarMIME("image/JPEG"))
	assert.False(t, IsAvatarMIME("image/svg+xml"))
	assert.True(t, IsImageMIME("image/svg+xml"))
	assert.True(t, IsAvatarExtension(".PNG"))
	assert.False(t, IsAvatarExtension(".heic"))
}
