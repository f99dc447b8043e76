package util

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// EncodeBytes32String packs a short string into a right zero-padded bytes32,
// the layout used for protocol parameter keys.
func EncodeBytes32String(str string) ([32]byte, error) {
	var out [32]byte
	// one byte is reserved for the terminating zero
	if len(str) > 31 {
		return out, fmt.Errorf("bytes32 string must be less than 32 bytes: %q", str)
	}
	copy(out[:], str)
	return out, nil
}

// MustEncodeBytes32String is EncodeBytes32String for compile-time constants.
func MustEncodeBytes32String(str string) [32]byte {
	out, err := EncodeBytes32String(str)
	if err != nil {
		panic(err)
	}
	return out
}

// DecodeBytes32String reverses EncodeBytes32String.
func DecodeBytes32String(b [32]byte) (string, error) {
	if b[31] != 0 {
		return "", fmt.Errorf("invalid bytes32 string: missing null terminator")
	}
	n := bytes.IndexByte(b[:], 0)
	s := string(b[:n])
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("invalid bytes32 string: not utf-8")
	}
	return s, nil
}
