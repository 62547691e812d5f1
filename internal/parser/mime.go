package parser

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// ErrInvalidMIME is returned when a MIME type cannot be parsed.
var ErrInvalidMIME = errors.New("invalid MIME type")

// Gemtext is the media type of Gemini documents.
const Gemtext = "text/gemini"

// defaultCharset is assumed when a text type has no charset parameter.
const defaultCharset = "utf-8"

// MediaType is a parsed MIME type.
type MediaType struct {
	// Type is the lower-case media type without parameters.
	Type string

	// Charset is the lower-case charset parameter, "utf-8" when absent.
	Charset string

	// Lang is the lang parameter of text/gemini, if any.
	Lang string

	// Params holds all parameters with lower-case keys.
	Params map[string]string
}

// IsText reports whether the media type is a text type.
func (m MediaType) IsText() bool {
	return strings.HasPrefix(m.Type, "text/")
}

// String returns the media type without parameters.
func (m MediaType) String() string {
	return m.Type
}

// ParseMIME parses the meta of a success response. An empty meta means
// "text/gemini; charset=utf-8".
func ParseMIME(meta string) (MediaType, error) {
	meta = strings.TrimSpace(meta)
	if meta == "" {
		return MediaType{Type: Gemtext, Charset: defaultCharset, Params: map[string]string{}}, nil
	}

	mediaType, params, err := mime.ParseMediaType(meta)
	if err != nil {
		return MediaType{}, fmt.Errorf("%w: %q: %v", ErrInvalidMIME, meta, err)
	}

	mt := MediaType{
		Type:    mediaType,
		Charset: strings.ToLower(params["charset"]),
		Lang:    params["lang"],
		Params:  params,
	}
	if mt.Charset == "" {
		mt.Charset = defaultCharset
	}
	return mt, nil
}

// Decode converts body from charset to a UTF-8 string. Unknown charsets
// are treated as UTF-8.
func Decode(body []byte, charset string) string {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == defaultCharset || charset == "utf8" || charset == "us-ascii" {
		return toValidUTF8(body)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return toValidUTF8(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return toValidUTF8(body)
	}
	return toValidUTF8(decoded)
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
