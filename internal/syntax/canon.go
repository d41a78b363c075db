package syntax

import "strings"

// EncodeValues builds a canonical string key for an ordered value tuple,
// disambiguating kinds so that Str("5") and Int(5) never collide. Used
// throughout fact storage and the tabling layer as a map key for
// value-equality deduplication.
func EncodeValues(vals []Value) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteByte(byte('0' + v.Kind()))
		b.WriteByte('\x1e')
		b.WriteString(v.String())
	}
	return b.String()
}
