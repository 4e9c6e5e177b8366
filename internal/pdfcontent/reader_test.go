package pdfcontent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewContent(t *testing.T) {
	content := NewContent("  Line one  \nLine two\n\n  Line three", []string{"p1"})

	assert.Equal(t, []string{"Line one", "Line two", "", "Line three"}, content.Lines)
	assert.Equal(t, []string{"p1"}, content.Pages)
	assert.Contains(t, content.Text, "Line one")
}

func TestReader_ReadFileMissing(t *testing.T) {
	r := NewReader(zap.NewNop())

	content, err := r.ReadFile("/nonexistent/invoice.pdf")
	require.Error(t, err)
	assert.Nil(t, content)
}
