package prospects

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jordanlanch/outreach/pkg/phone"
	"github.com/jordanlanch/outreach/pkg/providers"
)

// fold lower-cases s and strips accents so "Médico" matches "medico".
func fold(s string) string {
	t := norm.NFD.String(strings.ToLower(strings.TrimSpace(s)))
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, t)
}

func containsAny(haystack string, needles []string) bool {
	h := fold(haystack)
	for _, n := range needles {
		if n = fold(n); n != "" && strings.Contains(h, n) {
			return true
		}
	}
	return false
}

// Match reports whether r passes the tenant filters. Empty criteria match everything.
func Match(f providers.Filters, r providers.Record) bool {
	if len(f.Industries) > 0 {
		ok := false
		for _, ind := range f.Industries {
			if fold(ind) == fold(r.Industry) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if len(f.Titles) > 0 && !containsAny(r.Title, f.Titles) {
		return false
	}

	if len(f.Locations) > 0 {
		loc := r.City + " | " + r.State + " | " + r.Country
		if !containsAny(loc, f.Locations) {
			return false
		}
	}

	if f.EmployeeMin > 0 || f.EmployeeMax > 0 {
		if r.EmployeeCount == nil {
			return false
		}
		n := *r.EmployeeCount
		if f.EmployeeMin > 0 && n < f.EmployeeMin {
			return false
		}
		if f.EmployeeMax > 0 && n > f.EmployeeMax {
			return false
		}
	}

	if len(f.Keywords) > 0 {
		text := fold(strings.Join([]string{r.FirstName, r.LastName, r.Title, r.Company, r.Industry}, " "))
		for _, k := range f.Keywords {
			if k = fold(k); k != "" && !strings.Contains(text, k) {
				return false
			}
		}
	}
	return true
}

// normalize cleans a record in place: trimmed strings, lower-cased email,
// E.164 phone (dropped when unparsable).
func normalize(r *providers.Record) {
	for _, f := range []*string{
		&r.Provider, &r.ExternalID, &r.FirstName, &r.LastName, &r.Company, &r.Title,
		&r.Industry, &r.City, &r.State, &r.Country, &r.LinkedInURL, &r.Website,
	} {
		*f = strings.TrimSpace(*f)
	}

	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		r.Email = ""
	}

	if r.Phone != "" {
		e164, err := phone.Normalize(r.Phone, phone.Region(r.Country))
		if err != nil {
			e164 = ""
		}
		r.Phone = e164
	}

	if r.UpdatedAt != nil {
		t := r.UpdatedAt.UTC()
		r.UpdatedAt = &t
	}
}
