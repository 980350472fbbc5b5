package midi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/buger/jsonparser"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// ManufacturerJSON is the non-commercial manufacturer ID that prefixes
// JSON payloads: F0 7D <json> F7
const ManufacturerJSON uint8 = 0x7D

// ErrNotJSON is returned for text that is not a JSON object
var ErrNotJSON = errors.New("not a JSON object")

// ErrSysExData is returned for SysEx data bytes with the high bit set
var ErrSysExData = errors.New("SysEx data byte out of range")

// CheckSysEx verifies that data can be framed between F0 and F7
func CheckSysEx(data []byte) error {
	for i, b := range data {
		if b >= 0x80 {
			return fmt.Errorf("%w: 0x%02X at %d", ErrSysExData, b, i)
		}
	}
	return nil
}

// ParseJSON validates text as a JSON object and returns its compact,
// 7-bit clean encoding.
func ParseJSON(text string) ([]byte, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: null", ErrNotJSON)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return escapeNonASCII(buf.Bytes()), nil
}

// JSONMessage frames a JSON payload as a SysEx message
func JSONMessage(payload []byte) gomidi.Message {
	data := make([]byte, 0, len(payload)+1)
	data = append(data, ManufacturerJSON)
	data = append(data, payload...)
	return gomidi.SysEx(data)
}

// DecodeJSON extracts the JSON object payload of a SysEx body (without
// F0/F7). ok is false for foreign manufacturer IDs, invalid JSON or JSON
// that is not an object.
func DecodeJSON(sysex []byte) (payload []byte, ok bool) {
	if len(sysex) < 2 || sysex[0] != ManufacturerJSON {
		return nil, false
	}
	payload = sysex[1:]
	if !json.Valid(payload) {
		return nil, false
	}
	if _, typ, _, err := jsonparser.Get(payload); err != nil || typ != jsonparser.Object {
		return nil, false
	}
	return payload, true
}

// JSONKeys lists the top-level keys of a JSON object payload
func JSONKeys(payload []byte) []string {
	var keys []string
	_ = jsonparser.ObjectEach(payload, func(key, _ []byte, _ jsonparser.ValueType, _ int) error {
		keys = append(keys, string(key))
		return nil
	})
	return keys
}

// escapeNonASCII rewrites every rune >= 0x80 as a \u escape. In valid
// JSON such runes only occur inside strings, so the result stays valid.
func escapeNonASCII(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		if r > 0xFFFF {
			r -= 0x10000
			out = fmt.Appendf(out, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		out = fmt.Appendf(out, `\u%04x`, r)
	}
	return out
}
