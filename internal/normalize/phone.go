package normalize

import (
	"strings"
)

// Calling codes for the countries the planner's geographic hints can
// name. Keyed by ISO 3166-1 alpha-2.
var callingCodes = map[string]string{
	"US": "1", "CA": "1", "GB": "44", "IE": "353", "FR": "33", "DE": "49",
	"ES": "34", "PT": "351", "IT": "39", "NL": "31", "BE": "32", "CH": "41",
	"AT": "43", "SE": "46", "NO": "47", "DK": "45", "FI": "358", "PL": "48",
	"CZ": "420", "RO": "40", "GR": "30", "TR": "90", "RU": "7", "UA": "380",
	"AU": "61", "NZ": "64", "JP": "81", "KR": "82", "CN": "86", "IN": "91",
	"SG": "65", "HK": "852", "TW": "886", "BR": "55", "MX": "52", "AR": "54",
	"CL": "56", "CO": "57", "ZA": "27", "NG": "234", "EG": "20", "IL": "972",
	"AE": "971", "SA": "966",
}

// National number lengths outside 4..14 digits cannot be valid
const (
	minNationalDigits = 4
	maxPhoneDigits    = 15
)

// PhoneForms parses a phone number to E.164 plus a last-7-digits partial
// key. defaultCountry (alpha-2) resolves national-format input; when the
// input already carries a +country prefix the hint is ignored. Returns
// empty forms when the number cannot be made valid.
func PhoneForms(raw, defaultCountry string) (e164, last7 string) {
	raw = strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(raw, "+")

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return "", ""
	}

	switch {
	case hasPlus:
		// Already international
	case strings.HasPrefix(d, "00"):
		// International dialing prefix
		d = d[2:]
	default:
		code := callingCodes[strings.ToUpper(defaultCountry)]
		if code == "" {
			// Without a resolvable country a bare national number is
			// ambiguous; accept it only if it already looks like E.164.
			if len(d) < 11 {
				return "", ""
			}
		} else {
			// Strip a national trunk zero before prefixing, except for
			// countries where the trunk digit is part of the number.
			if code != "39" && len(d) > 1 && d[0] == '0' {
				d = d[1:]
			}
			d = code + d
		}
	}

	if len(d) < minNationalDigits+1 || len(d) > maxPhoneDigits {
		return "", ""
	}
	e164 = "+" + d
	if len(d) >= 7 {
		last7 = d[len(d)-7:]
	} else {
		last7 = d
	}
	return e164, last7
}
