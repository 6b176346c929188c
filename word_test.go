package arinc429

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWord_Fields(t *testing.T) {
	w := NewWord(0o203, 1, 0x12345, 3)
	assert.Equal(t, Word(0x648D1583), w)
	assert.Equal(t, uint8(0o203), w.Label())
	assert.Equal(t, "203", w.LabelOctal())
	assert.Equal(t, uint8(1), w.SDI())
	assert.Equal(t, uint32(0x12345), w.Data())
	assert.Equal(t, uint8(3), w.SSM())
	assert.Equal(t, uint8(0), w.Parity())
	assert.True(t, w.OddParity())
	assert.Equal(t, "648D1583", w.String())
}

func TestNewWord_SetsParityBit(t *testing.T) {
	w := NewWord(3, 0, 0, 0)
	assert.Equal(t, Word(0x80000003), w)
	assert.Equal(t, uint8(1), w.Parity())
	assert.True(t, w.OddParity())

	// out of range fields are masked
	w = NewWord(1, 0xFF, 0xFFFFFFFF, 0xFF)
	assert.Equal(t, uint8(3), w.SDI())
	assert.Equal(t, uint32(0x7FFFF), w.Data())
	assert.Equal(t, uint8(3), w.SSM())
	assert.True(t, w.OddParity())
}

func TestWord_Field(t *testing.T) {
	w := Word(0xFFFFFFFF)
	assert.Equal(t, uint32(0xFFFFFFFF), w.Field(32, 1))
	assert.Equal(t, uint32(0xFF), w.Field(8, 1))
	assert.Equal(t, uint32(1), w.Field(32, 32))
	assert.Zero(t, w.Field(1, 2))
	assert.Zero(t, w.Field(0, 0))
	assert.Zero(t, w.Field(33, 1))
}

func TestWord_BNR(t *testing.T) {
	assert.Equal(t, int32(5), NewWord(0, 0, 5, 0).BNR(29, 11))
	neg := NewWord(0, 0, 0x7FFFF, 0)
	assert.Equal(t, int32(-1), neg.BNR(29, 11))
	assert.Equal(t, int32(-1), neg.BNR(28, 11))
}

func TestWord_BCD(t *testing.T) {
	w := NewWord(0, 0, 0x1234, 0)
	assert.Equal(t, uint32(1234), w.BCD(29, 11))
	assert.Equal(t, uint32(34), w.BCD(18, 11))
}

func TestParseLabel(t *testing.T) {
	l, err := ParseLabel("203")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x83), l)

	_, err = ParseLabel("9")
	assert.Error(t, err)
	_, err = ParseLabel("400")
	assert.Error(t, err)
}
