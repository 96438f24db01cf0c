package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
	"unicode/utf8"

	textunicode "golang.org/x/text/encoding/unicode"
)

var utf16BE = textunicode.UTF16(textunicode.BigEndian, textunicode.IgnoreBOM)

// ReadVarInt reads a variable-length integer of at most MaxVarIntLen
// bytes. Decoding stops after five bytes even if the continuation bit is
// still set, so the result of hostile input is garbage but bounded.
// Callers must range-check the value before using it as a length.
func ReadVarInt(r io.Reader) (int32, error) {
	var (
		result uint32
		b      [1]byte
	)
	for i := 0; i < MaxVarIntLen; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return 0, wrapReadErr("varint", err)
		}
		result |= uint32(b[0]&0x7F) << (7 * uint(i))
		if b[0]&0x80 == 0 {
			break
		}
	}
	return int32(result), nil
}

// AppendVarInt appends the varint encoding of v, treating it as an
// unsigned 32-bit magnitude. Negative values take five bytes.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// WriteVarInt writes the varint encoding of v.
func WriteVarInt(w io.Writer, v int32) error {
	var buf [MaxVarIntLen]byte
	if _, err := w.Write(AppendVarInt(buf[:0], v)); err != nil {
		return fmt.Errorf("failed to write varint: %w", err)
	}
	return nil
}

// VarIntSize returns the number of bytes AppendVarInt would produce.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// ReadString reads a varint byte length followed by that many bytes of
// UTF-8. Text that is not valid UTF-8 decodes to the empty string
// without an error: scanners send garbage and the connection goes on.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || n > MaxStringBytes {
		return "", fmt.Errorf("string length %d: %w", n, ErrInvalidLength)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", wrapReadErr("string", err)
	}
	if !utf8.Valid(data) {
		return "", nil
	}
	return string(data), nil
}

// WriteString writes s with a varint byte-length prefix.
func WriteString(w io.Writer, s string) error {
	if err := WriteVarInt(w, int32(len(s))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("failed to write string: %w", err)
	}
	return nil
}

// ReadByte reads a single byte.
func ReadByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, wrapReadErr("byte", err)
	}
	return b[0], nil
}

// ReadUint16 reads a big-endian unsigned short.
func ReadUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, wrapReadErr("unsigned short", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// ReadInt32 reads a big-endian 32-bit integer.
func ReadInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, wrapReadErr("int", err)
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// ReadInt64 reads a big-endian 64-bit integer.
func ReadInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, wrapReadErr("long", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// ReadUint128 reads a big-endian 128-bit value, as used for player UUIDs.
func ReadUint128(r io.Reader) (Uint128, error) {
	var b [16]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Uint128{}, wrapReadErr("uuid", err)
	}
	return Uint128{
		Hi: binary.BigEndian.Uint64(b[:8]),
		Lo: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// ReadUTF16BE reads n big-endian UTF-16 code units. Unpaired surrogates
// fail with ErrInvalidEncoding.
func ReadUTF16BE(r io.Reader, n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("utf-16 length %d: %w", n, ErrInvalidLength)
	}

	data := make([]byte, 2*n)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", wrapReadErr("utf-16 string", err)
	}

	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	if err := checkSurrogates(units); err != nil {
		return "", err
	}
	return string(utf16.Decode(units)), nil
}

// EncodeUTF16BE converts s to UTF-16 and writes each code unit as an
// explicit big-endian byte pair.
func EncodeUTF16BE(s string) ([]byte, error) {
	out, err := utf16BE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode utf-16: %w: %w", ErrInvalidEncoding, err)
	}
	return out, nil
}

// WriteUTF16BE writes s as big-endian UTF-16 without a length prefix.
func WriteUTF16BE(w io.Writer, s string) error {
	data, err := EncodeUTF16BE(s)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write utf-16 string: %w", err)
	}
	return nil
}

// UTF16Len returns the number of UTF-16 code units needed for s.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		// ranging a string never yields surrogates, so RuneLen is 1 or 2
		n += utf16.RuneLen(r)
	}
	return n
}

func checkSurrogates(units []uint16) error {
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] > 0xDFFF {
				return fmt.Errorf("unpaired high surrogate 0x%04X at %d: %w", u, i, ErrInvalidEncoding)
			}
			i++
		case u >= 0xDC00 && u <= 0xDFFF:
			return fmt.Errorf("unpaired low surrogate 0x%04X at %d: %w", u, i, ErrInvalidEncoding)
		}
	}
	return nil
}
