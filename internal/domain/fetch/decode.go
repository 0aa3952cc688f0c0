package fetch

import (
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// minDetectConfidence is the chardet confidence (0-100) required before a
// detected charset overrides the windows-1252 fallback.
const minDetectConfidence = 50

// decodeText converts a response body to UTF-8 text. A declared charset
// wins; undeclared bodies that are valid UTF-8 are used as-is, anything else
// goes through detection.
func decodeText(body []byte, contentType string) (text string, name string) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain {
		if utf8.Valid(body) {
			return string(body), "utf-8"
		}
		if name == "windows-1252" {
			if detected := detectCharset(body); detected != "" {
				if e, n := charset.Lookup(detected); e != nil {
					enc, name = e, n
				}
			}
		}
	}

	// A byte order mark is stripped rather than surfacing as U+FEFF.
	decoded, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "�"), "utf-8"
	}
	return string(decoded), name
}

func detectCharset(body []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result == nil || result.Confidence < minDetectConfidence {
		return ""
	}
	return strings.ToLower(result.Charset)
}

// contentTypeOf returns the declared content type, sniffing the body when
// the server sent none.
func contentTypeOf(header string, body []byte) string {
	if header != "" {
		return header
	}
	return mimetype.Detect(body).String()
}
