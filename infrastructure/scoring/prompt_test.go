package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompter_Render(t *testing.T) {
	p, err := NewPrompter("")
	require.NoError(t, err)

	got, err := p.Render("  What is H2O?  ", "Water\n")
	require.NoError(t, err)
	assert.Equal(t, "Question:\nWhat is H2O?\n\nAnswer:\nWater", got)
}

func TestPrompter_NormalizesToNFC(t *testing.T) {
	p, err := NewPrompter("{{.Answer}}")
	require.NoError(t, err)

	decomposed := "cafe\u0301"
	composed := "caf\u00e9"

	a, err := p.Render("q", decomposed)
	require.NoError(t, err)
	b, err := p.Render("q", composed)
	require.NoError(t, err)

	assert.Equal(t, composed, a)
	assert.Equal(t, a, b, "canonically equivalent answers should render identically")
}

func TestNewPrompter_CustomTemplate(t *testing.T) {
	p, err := NewPrompter("Q={{.Question}} A={{.Answer}}")
	require.NoError(t, err)

	got, err := p.Render("one", "two")
	require.NoError(t, err)
	assert.Equal(t, "Q=one A=two", got)

	_, err = NewPrompter("{{.Missing")
	assert.Error(t, err)
}
