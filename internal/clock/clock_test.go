package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvance_Monotonic(t *testing.T) {
	c := New()
	assert.EqualValues(t, 1, c.Advance())
	assert.EqualValues(t, 2, c.Advance())
}

func TestBeginRead_PinsCurrentVersion(t *testing.T) {
	c := New()
	c.Advance()
	v := c.BeginRead()
	c.Advance()
	assert.EqualValues(t, 1, v)
	assert.EqualValues(t, 2, c.Current())
}

func TestMinLive_NoReaders(t *testing.T) {
	c := New()
	c.Advance()
	c.Advance()
	assert.Equal(t, c.Current(), c.MinLive())
}

func TestMinLive_OldestReaderWins(t *testing.T) {
	c := New()
	c.Advance() // 1
	v1 := c.BeginRead()
	c.Advance() // 2
	v2 := c.BeginRead()
	c.Advance() // 3

	assert.Equal(t, v1, c.MinLive())
	c.EndRead(v1)
	assert.Equal(t, v2, c.MinLive())
}

func TestEndRead_RefCounting(t *testing.T) {
	c := New()
	c.Advance()
	v := c.BeginRead()
	c.Pin(v)
	assert.Equal(t, 1, c.LiveCount())
	c.EndRead(v)
	assert.Equal(t, 1, c.LiveCount()) // one ref remains
	c.EndRead(v)
	assert.Equal(t, 0, c.LiveCount())
}
