package asm

// AppendULEB128 appends v in unsigned LEB128 format.
func AppendULEB128(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// AppendSLEB128 appends v in signed LEB128 format.
func AppendSLEB128[T int32 | int64](dst []byte, v T) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// appendName appends a length-prefixed UTF-8 name.
func appendName(dst []byte, name string) []byte {
	dst = AppendULEB128(dst, uint32(len(name)))
	return append(dst, name...)
}

// appendSection appends a section with its id and size prefix.
func appendSection(dst []byte, id byte, body []byte) []byte {
	dst = append(dst, id)
	dst = AppendULEB128(dst, uint32(len(body)))
	return append(dst, body...)
}
