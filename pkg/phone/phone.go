// Package phone normalizes prospect and inbound phone numbers to E.164.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a record carries no usable country.
const DefaultRegion = "US"

// ErrInvalid is returned for numbers that parse but are not dialable.
var ErrInvalid = errors.New("invalid phone number")

// countryRegions maps the country names providers commonly return to ISO regions.
var countryRegions = map[string]string{
	"united states":            "US",
	"united states of america": "US",
	"usa":                      "US",
	"canada":                   "CA",
	"mexico":                   "MX",
	"méxico":                   "MX",
	"united kingdom":           "GB",
	"uk":                       "GB",
	"germany":                  "DE",
	"france":                   "FR",
	"spain":                    "ES",
	"españa":                   "ES",
	"italy":                    "IT",
	"colombia":                 "CO",
	"brazil":                   "BR",
	"brasil":                   "BR",
	"argentina":                "AR",
	"chile":                    "CL",
	"australia":                "AU",
	"india":                    "IN",
	"netherlands":              "NL",
	"ireland":                  "IE",
}

// Region resolves a country name or ISO code to a phonenumbers region.
func Region(country string) string {
	c := strings.ToLower(strings.TrimSpace(country))
	if c == "" {
		return DefaultRegion
	}
	if r, ok := countryRegions[c]; ok {
		return r
	}
	if len(c) == 2 {
		r := strings.ToUpper(c)
		if phonenumbers.GetCountryCodeForRegion(r) != 0 {
			return r
		}
	}
	return DefaultRegion
}

// Normalize parses phone in region and returns its E.164 form.
func Normalize(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// LooksLikePhone reports whether identity should be treated as a phone
// number rather than an email address.
func LooksLikePhone(identity string) bool {
	identity = strings.TrimSpace(identity)
	if identity == "" || strings.Contains(identity, "@") {
		return false
	}
	digits := 0
	for _, r := range identity {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune("+-(). ", r):
		default:
			return false
		}
	}
	return digits >= 7
}
