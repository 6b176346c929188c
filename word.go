package arinc429

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Word is a 32-bit bus word as stored by the card. Bit numbers used by the
// field accessors follow the bus convention: bit 1 is the least significant
// bit of the label, bit 32 is parity.
type Word uint32

// Label returns bits 1-8.
func (w Word) Label() uint8 {
	return uint8(w & 0xFF)
}

// SDI returns the source/destination identifier (bits 9-10).
func (w Word) SDI() uint8 {
	return uint8(w.Field(10, 9))
}

// Data returns the data field (bits 11-29).
func (w Word) Data() uint32 {
	return w.Field(29, 11)
}

// SSM returns the sign/status matrix (bits 30-31).
func (w Word) SSM() uint8 {
	return uint8(w.Field(31, 30))
}

// Parity returns bit 32.
func (w Word) Parity() uint8 {
	return uint8(w >> 31)
}

// OddParity reports whether the word carries an odd number of set bits, which
// is the valid state on the bus.
func (w Word) OddParity() bool {
	return bits.OnesCount32(uint32(w))%2 == 1
}

// Field returns bits lsb..msb inclusive, shifted down.
func (w Word) Field(msb, lsb uint) uint32 {
	if msb < lsb || lsb < 1 || msb > 32 {
		return 0
	}
	width := msb - lsb + 1
	v := uint32(w) >> (lsb - 1)
	if width == 32 {
		return v
	}
	return v & (1<<width - 1)
}

// BNR decodes a two's complement binary field. The sign is taken from bit 29.
func (w Word) BNR(msb, lsb uint) int32 {
	v := int64(w.Field(msb, lsb))
	if w.Field(29, 29) == 1 {
		v -= 1 << (msb - lsb + 1)
	}
	return int32(v)
}

// BCD decodes a binary coded decimal field, four bits per digit starting at
// lsb. The most significant digit may be narrower than four bits.
func (w Word) BCD(msb, lsb uint) uint32 {
	var (
		val  uint32
		mul  uint32 = 1
		low        = lsb
	)
	for low <= msb {
		high := low + 3
		if high > msb {
			high = msb
		}
		val += w.Field(high, low) * mul
		mul *= 10
		low = high + 1
	}
	return val
}

// NewWord assembles a word from its fields and sets bit 32 so the word has
// odd parity.
func NewWord(label, sdi uint8, data uint32, ssm uint8) Word {
	w := Word(label) |
		Word(sdi&0x3)<<8 |
		Word(data&0x7FFFF)<<10 |
		Word(ssm&0x3)<<29
	if !w.OddParity() {
		w |= 1 << 31
	}
	return w
}

func (w Word) LabelOctal() string {
	return fmt.Sprintf("%03o", w.Label())
}

func (w Word) String() string {
	return fmt.Sprintf("%08X", uint32(w))
}

// ParseLabel parses an octal label such as "203".
func ParseLabel(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 8, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid octal label %q: %w", s, err)
	}
	return uint8(v), nil
}
