package query

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var binaryTypes = map[string]bool{
	"BLOB":       true,
	"TINYBLOB":   true,
	"MEDIUMBLOB": true,
	"LONGBLOB":   true,
	"BINARY":     true,
	"VARBINARY":  true,
	"BYTEA":      true,
	"BIT":        true,
	"GEOMETRY":   true,
}

// IsBinaryType reports whether a driver type name denotes raw bytes.
func IsBinaryType(dbType string) bool {
	return binaryTypes[strings.ToUpper(strings.TrimSpace(dbType))]
}

// BinaryPlaceholder describes a binary value without exposing its bytes.
func BinaryPlaceholder(n int) string {
	return fmt.Sprintf("BINARY(%d bytes)", n)
}

// RenderValue converts a scanned cell into a display-safe value. Byte slices
// become text unless the column is binary or the bytes are not valid UTF-8.
func RenderValue(value any, dbType string) any {
	raw, ok := value.([]byte)
	if !ok {
		return value
	}
	if IsBinaryType(dbType) || !utf8.Valid(raw) {
		return BinaryPlaceholder(len(raw))
	}
	return string(raw)
}
