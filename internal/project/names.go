package project

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ł and Ł do not decompose under NFD.
var strokeReplacer = strings.NewReplacer("ł", "l", "Ł", "L", "đ", "d", "Đ", "D", "ø", "o", "Ø", "O")

// FoldDiacritics maps "Łódź żółw" to "Lodz zolw".
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strokeReplacer.Replace(out)
}

// SafeName turns a project name into a directory name. An empty result is
// replaced by a timestamped default.
func SafeName(name string, now time.Time) string {
	s := FoldDiacritics(strings.TrimSpace(name))
	s = strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), r == ' ':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "projekt_" + now.Format("20060102_150405")
	}
	return s
}
