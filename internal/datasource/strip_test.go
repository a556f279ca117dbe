package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripShapes(t *testing.T) {
	in := buildZip(t, map[string]string{
		"stops.txt":       "stop_id\nS1\n",
		"feed/shapes.txt": "shape_id\nSH1\n",
	})

	out, removed, err := StripShapes(in)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"stops.txt"}, zipNames(t, out))
}

func TestStripShapesWithoutShapes(t *testing.T) {
	in := buildZip(t, map[string]string{"stops.txt": "stop_id\nS1\n"})

	out, removed, err := StripShapes(in)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, in, out)
}

func TestStripShapesInvalidZip(t *testing.T) {
	_, _, err := StripShapes([]byte("not a zip"))
	assert.Error(t, err)
}
