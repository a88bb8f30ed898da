package urlquery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceCursorAppendsWhenAbsent(t *testing.T) {
	got := ReplaceCursor("https://h/pull?sequenceId=seq-1", "tok")
	require.Equal(t, "https://h/pull?sequenceId=seq-1&cursor=tok", got)
}

func TestReplaceCursorReplacesExistingPreservingOrder(t *testing.T) {
	got := ReplaceCursor("https://h/pull?a=1&cursor=old&b=2", "new")
	require.Equal(t, "https://h/pull?a=1&cursor=new&b=2", got)
}

func TestReplaceCursorNoQueryString(t *testing.T) {
	got := ReplaceCursor("https://h/pull", "tok")
	require.Equal(t, "https://h/pull?cursor=tok", got)
}

func TestReplaceCursorEncodesJSONCursor(t *testing.T) {
	got := ReplaceCursor("https://h/pull?sequenceId=seq-1", `{"foo":"bar"}`)
	require.Equal(t, "https://h/pull?sequenceId=seq-1&cursor=%7B%22foo%22%3A%22bar%22%7D", got)
}
