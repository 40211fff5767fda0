package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
)

func playlistValues(entries ...[4]interface{}) common.Values {
	var out common.Values
	for _, e := range entries {
		out = append(out,
			common.S(e[0].(string)),
			common.S(e[1].(string)),
			common.R(e[2].(float64)),
			common.R(e[3].(float64)))
	}
	return out
}

func TestPlaylistValidation(t *testing.T) {
	q := New(nil)

	// Entries come in (type, file, start, stop) tuples.
	assert.False(t, q.SetAttribute("playlist", common.Values{common.S("image")}))

	// stop must be after start.
	bad := playlistValues([4]interface{}{"image", "a.png", 5.0, 2.0})
	assert.False(t, q.SetAttribute("playlist", bad))

	good := playlistValues(
		[4]interface{}{"image", "a.png", 0.0, 2.0},
		[4]interface{}{"image", "b.png", 2.0, 5.0},
	)
	require.True(t, q.SetAttribute("playlist", good))

	stored, ok := q.GetAttribute("playlist")
	require.True(t, ok)
	assert.Len(t, stored, 8)
	assert.Equal(t, "a.png", stored[1].AsString())
}

func TestDuration(t *testing.T) {
	q := New(nil)
	require.True(t, q.SetAttribute("playlist", playlistValues(
		[4]interface{}{"image", "a.png", 0.0, 2.0},
		[4]interface{}{"image", "b.png", 2.0, 7.5},
	)))
	assert.InDelta(t, 7.5, q.Duration(), 1e-9)
}

func TestSeekRejectsNegative(t *testing.T) {
	q := New(nil)
	assert.False(t, q.SetAttribute("seek", common.Values{common.R(-1.0)}))
	assert.True(t, q.SetAttribute("seek", common.Values{common.R(1.5)}))
}
