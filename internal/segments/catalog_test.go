package segments

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CoversReferenceK(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate(3))
	assert.Error(t, c.Validate(4))
	assert.Len(t, c.All(), 3)
	assert.Equal(t, "Digital Traveler", c.Describe(2).Label)
}

func TestDescribe_UnknownNeverFails(t *testing.T) {
	c := Default()

	for _, id := range []int{-1, 3, 42, -9999} {
		d := c.Describe(id)
		assert.Equal(t, Unknown.Label, d.Label)
		assert.Equal(t, Unknown.Description, d.Description)
		assert.Equal(t, id, d.SegmentID)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
segments:
  - id: 0
    label: Saver
    description: Rarely spends.
  - id: 1
    label: Spender
    description: Spends a lot.
`), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, domain.Descriptor{SegmentID: 1, Label: "Spender", Description: "Spends a lot."}, c.Describe(1))
	assert.NoError(t, c.Validate(2))
	assert.ErrorIs(t, c.Validate(3), domain.ErrInvalidConfig)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("segments: []\n"), 0o644))
	_, err = LoadFile(empty)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("segments: [ {id: \n"), 0o644))
	_, err = LoadFile(broken)
	assert.Error(t, err)
}
