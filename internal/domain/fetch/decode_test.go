package fetch

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        string
		charset     string
	}{
		{"declared utf-8", []byte("héllo"), "text/plain; charset=utf-8", "héllo", "utf-8"},
		{"undeclared utf-8", []byte("héllo"), "text/plain", "héllo", "utf-8"},
		{"plain ascii", []byte("hello"), "", "hello", "utf-8"},
		{"utf-8 bom", []byte("\xef\xbb\xbfhello"), "text/plain", "hello", "utf-8"},
		{"declared latin1", []byte("caf\xe9"), "text/html; charset=ISO-8859-1", "café", "windows-1252"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, name := decodeText(tt.body, tt.contentType)
			assert.Equal(t, tt.want, text)
			assert.Equal(t, tt.charset, name)
		})
	}
}

func TestDecodeTextAlwaysYieldsUTF8(t *testing.T) {
	body := []byte{0xff, 0xfe, 0x00, 0xd8, 0x41, 0x80, 0x81}
	text, _ := decodeText(body, "application/octet-stream")
	assert.True(t, utf8.ValidString(text))
}

func TestContentTypeOf(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeOf("application/json", []byte("<html></html>")))
	assert.Equal(t, "text/html; charset=utf-8", contentTypeOf("", []byte("<html><body>hi</body></html>")))
	assert.Equal(t, "text/plain; charset=utf-8", contentTypeOf("", []byte("just words")))
}

