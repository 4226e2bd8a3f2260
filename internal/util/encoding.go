package util

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// EnsureUTF8Bytes decodes console bytes that are not valid UTF-8 using common
// legacy encodings and returns a UTF-8 string. Valid UTF-8 is returned as-is;
// when detection fails the raw bytes are returned unchanged.
func EnsureUTF8Bytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	// Banners of localized device images commonly use these encodings
	encs := []encoding.Encoding{
		simplifiedchinese.GB18030,
		simplifiedchinese.GBK,
		traditionalchinese.Big5,
		charmap.Windows1252,
		charmap.ISO8859_1,
	}
	for _, enc := range encs {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return string(b)
}

// EnsureUTF8 converts a possibly mojibake string to UTF-8.
func EnsureUTF8(s string) string {
	return EnsureUTF8Bytes([]byte(s))
}

func tryDecode(enc encoding.Encoding, b []byte) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	if utf8.Valid(decoded) {
		return string(decoded), true
	}
	return "", false
}
