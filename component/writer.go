package component

import "fmt"

// Append-style encoders for the component binary format. Sections are
// assembled as raw payloads and framed by appendSection.

// appendLEB128 appends v as unsigned LEB128.
func appendLEB128(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// appendSLEB128 appends v as signed LEB128. Type references in value
// types are var_s33, so indices go through this even when
// non-negative.
func appendSLEB128(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// appendName appends a length-prefixed string.
func appendName(buf []byte, s string) []byte {
	buf = appendLEB128(buf, uint32(len(s)))
	return append(buf, s...)
}

// appendExternName appends an import or export name: the 0x00 name
// kind byte followed by the length-prefixed string.
func appendExternName(buf []byte, s string) []byte {
	buf = append(buf, 0x00)
	return appendName(buf, s)
}

// appendSection frames a section payload with its id and size.
func appendSection(buf []byte, id byte, payload []byte) []byte {
	buf = append(buf, id)
	buf = appendLEB128(buf, uint32(len(payload)))
	return append(buf, payload...)
}

// appendValType appends a value type. Only the types the encoder
// produces are handled; anything else is a bug in the caller.
func appendValType(buf []byte, vt ValType) ([]byte, error) {
	switch t := vt.(type) {
	case PrimValType:
		return append(buf, byte(t.Type)), nil
	case TypeIndexRef:
		return appendSLEB128(buf, int64(t.Index)), nil
	}
	return nil, fmt.Errorf("cannot encode value type %T", vt)
}
