package parser

import (
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// TJ offsets at or below this, in thousandths of text space, separate words.
const wordGap = -200

// decodeContentStream returns the text shown by the Tj, TJ, ' and " operators of a page
// content stream, one space between show operations.
func decodeContentStream(stream string) string {
	var (
		b       strings.Builder
		arr     strings.Builder
		last    string
		inArray bool
	)
	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteral(stream[i:])
			i += n
			if inArray {
				arr.WriteString(s)
			} else {
				last = s
			}
		case strings.HasPrefix(stream[i:], "<<"), strings.HasPrefix(stream[i:], ">>"):
			i += 2
		case c == '<':
			s, n := readHex(stream[i:])
			i += n
			if inArray {
				arr.WriteString(s)
			} else {
				last = s
			}
		case c == '[':
			inArray = true
			arr.Reset()
			i++
		case c == ']':
			inArray = false
			last = arr.String()
			i++
		default:
			j := i + 1
			for j < len(stream) && !isPDFSpace(stream[j]) && !isPDFDelim(stream[j]) {
				j++
			}
			tok := stream[i:j]
			i = j
			if inArray {
				if v, err := strconv.ParseFloat(tok, 64); err == nil && v <= wordGap {
					arr.WriteByte(' ')
				}
				continue
			}
			switch tok {
			case "Tj", "TJ", "'", `"`:
				b.WriteString(last)
				b.WriteByte(' ')
				last = ""
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// readLiteral decodes a (...) string at the start of s and returns it with the bytes consumed.
func readLiteral(s string) (string, int) {
	var out []byte
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(':
			if depth > 0 {
				out = append(out, c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return textString(out), i + 1
			}
			out = append(out, c)
		case '\\':
			if i+1 >= len(s) {
				continue
			}
			i++
			switch e := s[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if i+1 < len(s) && s[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v, j := 0, i
					for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
						v = v*8 + int(s[j]-'0')
						j++
					}
					out = append(out, byte(v))
					i = j - 1
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return textString(out), len(s)
}

// readHex decodes a <...> string at the start of s.
func readHex(s string) (string, int) {
	end := strings.IndexByte(s, '>')
	if end < 0 {
		end = len(s)
	}
	digits := strings.Map(func(r rune) rune {
		if isPDFSpace(byte(r)) {
			return -1
		}
		return r
	}, s[1:end])
	if len(digits)%2 == 1 {
		digits += "0"
	}
	raw, err := hex.DecodeString(digits)
	n := min(end+1, len(s))
	if err != nil {
		return "", n
	}
	return textString(raw), n
}

// textString reads UTF-16BE when the string carries a byte order mark, UTF-8 when valid
// and single-byte codes otherwise.
func textString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		units := make([]uint16, 0, len(raw)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(units))
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	runes := make([]rune, len(raw))
	for i, c := range raw {
		runes[i] = rune(c)
	}
	return string(runes)
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}
