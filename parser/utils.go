package parser

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"golang.org/x/exp/constraints"
)

func streamToNumber[T constraints.Integer | constraints.Float](data []byte) (T, error) {
	var result T
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &result); err != nil {
		return *new(T), err
	}
	return result, nil
}

// decodeBCD renders packed BCD as decimal digits, two per byte.
func decodeBCD(data []byte) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(data) * 2)
	for _, b := range data {
		high, low := b>>4, b&0x0F
		if high > 9 || low > 9 {
			return "", false
		}
		sb.WriteByte('0' + high)
		sb.WriteByte('0' + low)
	}
	return sb.String(), true
}

// encodeBCD packs a decimal string, left padding odd lengths with a zero.
func encodeBCD(digits string, size int) []byte {
	for len(digits) < size*2 {
		digits = "0" + digits
	}
	digits = digits[len(digits)-size*2:]
	out := make([]byte, size)
	for i := range out {
		out[i] = (digits[2*i]-'0')<<4 | (digits[2*i+1] - '0')
	}
	return out
}

func hexUpper(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}

// additiveCheck is the plain 16-bit byte sum used in acknowledgement frames.
func additiveCheck(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
