package attempt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examportal/pkg/attempt"
)

func TestCursor_InitialPositionIsVisited(t *testing.T) {
	var visits []attempt.Key
	c := attempt.NewCursor(twoByTwo(), func(k attempt.Key) { visits = append(visits, k) })

	assert.Equal(t, attempt.Position{}, c.Position())
	assert.Equal(t, []attempt.Key{key("phy", "q1")}, visits)
	assert.True(t, c.AtStart())
}

func TestCursor_NextCrossesSectionsAndStopsAtEnd(t *testing.T) {
	var visits []attempt.Key
	c := attempt.NewCursor(twoByTwo(), func(k attempt.Key) { visits = append(visits, k) })

	require.True(t, c.Next())
	assert.Equal(t, attempt.Position{Section: 0, Question: 1}, c.Position())
	require.True(t, c.Next())
	assert.Equal(t, attempt.Position{Section: 1, Question: 0}, c.Position())
	require.True(t, c.Next())
	assert.True(t, c.AtEnd())

	assert.False(t, c.Next(), "next at the last question is a no-op")
	assert.Equal(t, attempt.Position{Section: 1, Question: 1}, c.Position())
	assert.Len(t, visits, 4)
}

func TestCursor_PrevLandsOnLastQuestionOfPreviousSection(t *testing.T) {
	c := attempt.NewCursor(twoByTwo(), nil)
	require.NoError(t, c.JumpTo(1, 0))

	require.True(t, c.Prev())
	assert.Equal(t, attempt.Position{Section: 0, Question: 1}, c.Position())
	require.True(t, c.Prev())
	assert.False(t, c.Prev(), "prev at the first question is a no-op")
	assert.True(t, c.AtStart())
}

func TestCursor_JumpVisitsAndRejectsOutOfRange(t *testing.T) {
	var visits []attempt.Key
	c := attempt.NewCursor(twoByTwo(), func(k attempt.Key) { visits = append(visits, k) })

	require.NoError(t, c.JumpTo(1, 1))
	assert.Equal(t, key("mat", "q4"), visits[len(visits)-1])

	assert.ErrorIs(t, c.JumpTo(2, 0), attempt.ErrOutOfRange)
	assert.ErrorIs(t, c.JumpTo(0, 2), attempt.ErrOutOfRange)
	assert.ErrorIs(t, c.JumpTo(-1, 0), attempt.ErrOutOfRange)
	assert.Equal(t, attempt.Position{Section: 1, Question: 1}, c.Position())

	require.NoError(t, c.JumpToSection(0))
	assert.Equal(t, attempt.Position{}, c.Position())
	assert.Len(t, visits, 3)
}
