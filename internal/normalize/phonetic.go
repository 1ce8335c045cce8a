package normalize

import (
	"strings"
)

// Soundex computes the classic four-character code for one token.
// Non-letters are ignored; an empty token yields an empty code.
func Soundex(token string) string {
	token = strings.ToUpper(token)
	var letters []byte
	for i := 0; i < len(token); i++ {
		if token[i] >= 'A' && token[i] <= 'Z' {
			letters = append(letters, token[i])
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := []byte{letters[0]}
	prev := soundexDigit(letters[0])
	for _, l := range letters[1:] {
		d := soundexDigit(l)
		if d == 0 {
			// H and W are transparent; vowels reset the run
			if l != 'H' && l != 'W' {
				prev = 0
			}
			continue
		}
		if d != prev {
			code = append(code, '0'+d)
			if len(code) == 4 {
				break
			}
		}
		prev = d
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

func soundexDigit(l byte) byte {
	switch l {
	case 'B', 'F', 'P', 'V':
		return 1
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return 2
	case 'D', 'T':
		return 3
	case 'L':
		return 4
	case 'M', 'N':
		return 5
	case 'R':
		return 6
	default:
		return 0
	}
}

// MetaphoneLike reduces a token to a consonant-skeleton code: common
// digraphs collapse, vowels survive only in initial position, doubled
// letters fold. Coarser than true Metaphone but stable and cheap.
func MetaphoneLike(token string) string {
	s := strings.ToUpper(token)
	var letters []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			letters = append(letters, s[i])
		}
	}
	if len(letters) == 0 {
		return ""
	}
	s = string(letters)

	// Digraph and context rewrites before the skeleton pass
	replacements := []struct{ from, to string }{
		{"PH", "F"}, {"GH", "G"}, {"KN", "N"}, {"GN", "N"}, {"WR", "R"},
		{"CK", "K"}, {"SCH", "SK"}, {"SH", "X"}, {"CH", "X"}, {"TH", "0"},
		{"CIA", "XA"}, {"TIO", "XO"}, {"DG", "J"}, {"QU", "KW"},
	}
	for _, r := range replacements {
		s = strings.ReplaceAll(s, r.from, r.to)
	}

	var out []byte
	var prev byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				out = append(out, c)
				prev = c
			}
			continue
		case 'C':
			// Soft C before E/I/Y
			if i+1 < len(s) && (s[i+1] == 'E' || s[i+1] == 'I' || s[i+1] == 'Y') {
				c = 'S'
			} else {
				c = 'K'
			}
		case 'G':
			if i+1 < len(s) && (s[i+1] == 'E' || s[i+1] == 'I' || s[i+1] == 'Y') {
				c = 'J'
			} else {
				c = 'K'
			}
		case 'Z':
			c = 'S'
		case 'V':
			c = 'F'
		case 'W', 'Y':
			// Only meaningful before a vowel
			if i+1 >= len(s) || !isVowel(s[i+1]) {
				continue
			}
		case 'H':
			continue
		}
		if c == prev {
			continue
		}
		out = append(out, c)
		prev = c
		if len(out) == 6 {
			break
		}
	}
	return string(out)
}

func isVowel(c byte) bool {
	return c == 'A' || c == 'E' || c == 'I' || c == 'O' || c == 'U'
}
