package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevelLeniently(t *testing.T) {
	t.Parallel()
	require.Equal(t, zerolog.DebugLevel, New("debug").GetLevel())
	require.Equal(t, zerolog.InfoLevel, New("not-a-level").GetLevel())
	require.Equal(t, zerolog.InfoLevel, New("").GetLevel())
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	ctx := WithContext(context.Background(), l)
	got := FromContext(ctx)
	got.Info().Str("k", "v").Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.Contains(t, buf.String(), `"k":"v"`)
}

func TestFromContextDefaultsToNop(t *testing.T) {
	t.Parallel()
	l := FromContext(context.Background())
	require.Equal(t, zerolog.Disabled, l.GetLevel())
}
