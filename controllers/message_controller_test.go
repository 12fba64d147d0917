package controllers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeContent_TrimsWhitespace(t *testing.T) {
	content, err := normalizeContent("  hi there  ")
	require.NoError(t, err)
	require.Equal(t, "hi there", content)
}

func TestNormalizeContent_RejectsEmpty(t *testing.T) {
	_, err := normalizeContent("   \t\n  ")
	require.ErrorIs(t, err, errEmptyContent)
}

func TestNormalizeContent_Boundary(t *testing.T) {
	content, err := normalizeContent(strings.Repeat("a", 1000))
	require.NoError(t, err)
	require.Len(t, content, 1000)

	_, err = normalizeContent(strings.Repeat("a", 1001))
	require.ErrorIs(t, err, errContentTooLong)
}

func TestNormalizeContent_CountsRunesNotBytes(t *testing.T) {
	// 1000 multi-byte characters are still within bounds
	content, err := normalizeContent(strings.Repeat("é", 1000))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", 1000), content)
}

func TestEditableAt_WithinWindow(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, editableAt(createdAt, createdAt.Add(4*time.Minute)))
	require.True(t, editableAt(createdAt, createdAt.Add(5*time.Minute)))
}

func TestEditableAt_TooOld(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.False(t, editableAt(createdAt, createdAt.Add(6*time.Minute)))
}
