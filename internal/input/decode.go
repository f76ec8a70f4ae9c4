package input

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type Encoding string

const (
	EncodingAuto        Encoding = "auto"
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1255 Encoding = "windows-1255"
)

func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "windows-1255", "cp1255", "hebrew":
		return EncodingWindows1255, nil
	default:
		return "", fmt.Errorf("unknown input encoding %q", s)
	}
}

const utf8BOM = "\uFEFF"

// mojibakeMinPairs is how many "×" + continuation-byte pairs mark UTF-8 Hebrew
// that was read as windows-1252.
const mojibakeMinPairs = 3

// Decoded is roster text in UTF-8 plus how it was obtained.
type Decoded struct {
	Text     string
	Encoding Encoding
	Repaired bool
}

// Decode converts raw roster bytes to UTF-8. Auto mode keeps valid UTF-8 (after
// mojibake repair) and falls back to windows-1255 otherwise.
func Decode(blob []byte, enc Encoding) (Decoded, error) {
	switch enc {
	case EncodingWindows1255:
		text, err := decodeWindows1255(blob)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Text: strings.TrimPrefix(text, utf8BOM), Encoding: EncodingWindows1255}, nil
	case EncodingUTF8:
		if !utf8.Valid(blob) {
			return Decoded{}, fmt.Errorf("input is not valid utf-8")
		}
		return Decoded{Text: strings.TrimPrefix(string(blob), utf8BOM), Encoding: EncodingUTF8}, nil
	case EncodingAuto, "":
	default:
		return Decoded{}, fmt.Errorf("unknown input encoding %q", enc)
	}

	if utf8.Valid(blob) {
		text := strings.TrimPrefix(string(blob), utf8BOM)
		fixed, repaired := RepairMojibake(text)
		return Decoded{Text: fixed, Encoding: EncodingUTF8, Repaired: repaired}, nil
	}
	text, err := decodeWindows1255(blob)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Text: text, Encoding: EncodingWindows1255}, nil
}

func decodeWindows1255(blob []byte) (string, error) {
	out, _, err := transform.Bytes(charmap.Windows1255.NewDecoder(), blob)
	if err != nil {
		return "", fmt.Errorf("decode windows-1255: %w", err)
	}
	return string(out), nil
}

// RepairMojibake undoes UTF-8 Hebrew that was decoded as windows-1252 and saved
// again, e.g. "×©×œ×•×" back to "שלום". Text that does not look damaged is
// returned unchanged.
func RepairMojibake(s string) (string, bool) {
	if !looksMojibake(s) {
		return s, false
	}
	raw, _, err := transform.String(charmap.Windows1252.NewEncoder(), s)
	if err != nil || !utf8.ValidString(raw) {
		return s, false
	}
	return raw, true
}

func looksMojibake(s string) bool {
	pairs := 0
	var prev rune
	for _, r := range s {
		if r >= 0x0590 && r <= 0x05FF {
			return false
		}
		if prev == '×' {
			if b, ok := charmap.Windows1252.EncodeRune(r); ok && b >= 0x80 && b <= 0xBF {
				pairs++
			}
		}
		prev = r
	}
	return pairs >= mojibakeMinPairs
}
