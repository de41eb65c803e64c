package util

import "encoding/binary"

const aadRecord = "RECORD"

// RecordAAD binds a sealed record to its location. Every part is length
// prefixed, so ids containing separators cannot collide.
func RecordAAD(scope, recordType, recordID string, ver int) []byte {
	return buildAAD(aadRecord, scope, recordType, recordID, ver)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case int:
			res = binary.BigEndian.AppendUint32(res, uint32(v))
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}
