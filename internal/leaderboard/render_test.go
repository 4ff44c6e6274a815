package leaderboard

import (
	"bytes"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, Render(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestRenderRows(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer

	entries := Reconcile([]ScoreRecord{{PlayerID: identity, Clicks: 50}, {PlayerID: "B", Clicks: 70}}, "B", 71)
	require.NoError(t, Render(&buf, entries))

	out := buf.String()
	assert.Contains(t, out, "Total Clicks")
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "71")
	assert.Contains(t, out, "abcd..effg")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("You")), bytes.Index(buf.Bytes(), []byte("abcd..effg")))
}
