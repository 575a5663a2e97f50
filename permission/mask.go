package permission

// Mask is a permission bitmask of up to 512 bits.
type Mask struct {
	words [8]uint64
	width int
}

func newMask(width int) Mask {
	return Mask{width: width}
}

// Width returns the mask width in bits.
func (m Mask) Width() int {
	return m.width
}

// Has reports whether bit is set.
func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= m.width {
		return false
	}
	return m.words[bit/64]&(1<<(uint(bit)%64)) != 0
}

// Set sets bit; out-of-range bits are ignored.
func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= m.width {
		return
	}
	m.words[bit/64] |= 1 << (uint(bit) % 64)
}

func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= m.width {
		return
	}
	m.words[bit/64] &^= 1 << (uint(bit) % 64)
}

// Bits lists the set bits in ascending order.
func (m Mask) Bits() []int {
	var out []int
	for bit := 0; bit < m.width; bit++ {
		if m.Has(bit) {
			out = append(out, bit)
		}
	}
	return out
}
