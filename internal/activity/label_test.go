package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelSet11(t *testing.T) {
	assert.Equal(t, 11, LabelSet11.Len())

	l, ok := LabelSet11.Lookup(0)
	assert.True(t, ok)
	assert.Equal(t, Standing, l)

	l, ok = LabelSet11.Lookup(10)
	assert.True(t, ok)
	assert.Equal(t, Running, l)

	for _, idx := range []int{-1, 11, 20} {
		l, ok = LabelSet11.Lookup(idx)
		assert.False(t, ok, "index %d", idx)
		assert.Equal(t, Unknown, l)
	}
}

func TestLabelSet19(t *testing.T) {
	assert.Equal(t, 18, LabelSet19.Len())

	l, ok := LabelSet19.Lookup(0)
	assert.False(t, ok)
	assert.Equal(t, Unknown, l)

	l, _ = LabelSet19.Lookup(18)
	assert.Equal(t, PingPong, l)
	l, _ = LabelSet19.Lookup(1)
	assert.Equal(t, Standing, l)
}

func TestLabelSetFor(t *testing.T) {
	s, err := LabelSetFor(19)
	require.NoError(t, err)
	assert.Equal(t, "19", s.Name())

	_, err = LabelSetFor(7)
	assert.Error(t, err)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "walking 0.900", Result{Label: Walking, Confidence: 0.9}.String())
}
