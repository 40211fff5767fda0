package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
)

const sampleConfig = `{
    "world": {
        "framerate": 60
    },
    "scenes": [
        {"name": "scene1", "address": "localhost"},
        {"name": "scene2", "address": "localhost", "spawn": 0, "display": 1}
    ],
    "scene1": {
        "objects": {
            "cam1": {"type": "camera", "eye": [2.0, 1.0, 1.5]},
            "obj1": {"type": "object"},
            "win1": {"type": "window", "position": [10, 20]}
        },
        "links": [["obj1", "cam1"], ["cam1", "win1"]]
    },
    "scene2": {
        "objects": {
            "cam2": {"type": "camera"}
        },
        "links": []
    }
}`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Scenes, 2)
	assert.Equal(t, "scene1", cfg.Scenes[0].Name)
	assert.Equal(t, 1, cfg.Scenes[1].Display)

	def, ok := cfg.Defs["scene1"]
	require.True(t, ok)
	assert.Len(t, def.Objects, 3)
	assert.Equal(t, "camera", def.Objects["cam1"].Type())
	assert.Len(t, def.Links, 2)

	// Document order is preserved for deterministic application.
	assert.Equal(t, []string{"cam1", "obj1", "win1"}, cfg.ObjectNames("scene1"))
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte("{not json"))
	assert.ErrorIs(t, err, ErrConfig)

	_, err = ParseConfig([]byte(`{"world": {}}`))
	assert.ErrorIs(t, err, ErrConfig)

	_, err = ParseConfig([]byte(`{"scenes": [{"address": "localhost"}]}`))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSaveReloadStable(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	require.NoError(t, cfg.Save(first))

	// Save, reload, save again: the second cycle is byte-identical.
	reloaded, err := LoadConfig(first)
	require.NoError(t, err)
	second := filepath.Join(dir, "second.json")
	require.NoError(t, reloaded.Save(second))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAttributeValuesConversion(t *testing.T) {
	vals := AttributeValues(3.0)
	require.Len(t, vals, 1)
	assert.Equal(t, common.ValueInteger, vals[0].Type())

	vals = AttributeValues(3.5)
	assert.Equal(t, common.ValueReal, vals[0].Type())

	vals = AttributeValues([]interface{}{1.0, "x", true})
	require.Len(t, vals, 3)
	assert.Equal(t, int64(1), vals[0].AsInt())
	assert.Equal(t, "x", vals[1].AsString())
	assert.True(t, vals[2].AsBool())

	vals = AttributeValues([]interface{}{[]interface{}{1.0, 2.0}})
	require.Len(t, vals, 1)
	assert.Equal(t, common.ValueValues, vals[0].Type())
}
