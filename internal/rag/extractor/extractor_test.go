package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PlainTextPassthrough(t *testing.T) {
	text, err := Extract("readme.md", []byte("# Title\n\nSome content here."), false)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nSome content here.", text)
}

func TestExtract_EmptyTextErrors(t *testing.T) {
	_, err := Extract("empty.txt", []byte("   \n\t "), false)
	require.Error(t, err)
}

func TestExtract_LossyDecodesInvalidUTF8(t *testing.T) {
	data := append([]byte("valid prefix "), 0xff, 0xfe)
	text, err := Extract("weird.bin", data, false)
	require.NoError(t, err)
	assert.Contains(t, text, "valid prefix")
}
