package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// normalizeJSONC blanks out comments and trailing commas so encoding/json accepts
// the document. Byte offsets and line breaks are preserved for error positions.
func normalizeJSONC(content string) (string, error) {
	out := make([]byte, 0, len(content))

	var (
		inString     bool
		escape       bool
		lineComment  bool
		blockComment bool
	)

	for i := 0; i < len(content); i++ {
		ch := content[i]

		switch {
		case lineComment:
			if ch == '\n' || ch == '\r' {
				lineComment = false
				out = append(out, ch)
			} else {
				out = append(out, ' ')
			}
			continue
		case blockComment:
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out = append(out, ' ', ' ')
				i++
			} else if isJSONWhitespace(ch) {
				out = append(out, ch)
			} else {
				out = append(out, ' ')
			}
			continue
		case inString:
			out = append(out, ch)
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '/':
			if i+1 < len(content) && (content[i+1] == '/' || content[i+1] == '*') {
				lineComment = content[i+1] == '/'
				blockComment = !lineComment
				out = append(out, ' ', ' ')
				i++
				continue
			}
		case '}', ']':
			blankTrailingComma(out)
		}
		out = append(out, ch)
	}

	if blockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

// blankTrailingComma replaces a comma that is followed only by whitespace.
func blankTrailingComma(out []byte) {
	for j := len(out) - 1; j >= 0; j-- {
		if isJSONWhitespace(out[j]) {
			continue
		}
		if out[j] == ',' {
			out[j] = ' '
		}
		return
	}
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

// decodeStrict decodes exactly one JSON object, rejecting unknown fields.
func decodeStrict(normalized string, target any) error {
	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return withPosition(normalized, err)
	}

	var extra json.RawMessage
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errors.New("multiple JSON values are not allowed")
	default:
		return withPosition(normalized, err)
	}
}

func withPosition(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// offsetToLineCol maps a decoder byte offset to the 1-based position of the
// offending byte.
func offsetToLineCol(content string, offset int64) (int, int) {
	limit := min(max(int(offset), 1), len(content))
	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
