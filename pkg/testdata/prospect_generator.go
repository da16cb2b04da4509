package testdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/jordanlanch/outreach/pkg/providers"
)

// ProspectGeneratorConfig configures fake prospect record generation
type ProspectGeneratorConfig struct {
	Provider    string
	Count       int
	Seed        int64   // 0 picks a random seed
	Industry    string  // empty picks from Industries
	Country     string  // empty picks from LocationData
	EmailChance float64 // 0.0-1.0 (probability of having email)
	PhoneChance float64
}

// DefaultProspectConfig returns sensible defaults for seeding
func DefaultProspectConfig(count int) ProspectGeneratorConfig {
	return ProspectGeneratorConfig{
		Provider:    "fake",
		Count:       count,
		EmailChance: 0.9,
		PhoneChance: 0.6,
	}
}

// Industries used when no industry is requested
var Industries = []string{
	"software", "financial services", "healthcare", "logistics",
	"manufacturing", "retail", "education", "real estate",
}

// LocationData maps countries to a few of their major cities
var LocationData = map[string][]string{
	"United States":  {"New York", "Austin", "Chicago", "Denver", "Seattle"},
	"Canada":         {"Toronto", "Montreal", "Vancouver", "Calgary"},
	"United Kingdom": {"London", "Manchester", "Leeds", "Bristol"},
	"Spain":          {"Madrid", "Barcelona", "Valencia", "Málaga"},
	"Mexico":         {"Ciudad de México", "Monterrey", "Guadalajara"},
}

var countries = []string{"United States", "Canada", "United Kingdom", "Spain", "Mexico"}

var titles = []string{
	"CEO", "CTO", "VP Sales", "Head of Marketing", "Sales Director",
	"Operations Manager", "Founder", "Growth Lead", "Account Executive",
}

// GenerateProspects generates provider records with realistic fake data.
// Records generated from the same non-zero seed are identical.
func GenerateProspects(cfg ProspectGeneratorConfig) []providers.Record {
	f := gofakeit.New(cfg.Seed)
	if cfg.Provider == "" {
		cfg.Provider = "fake"
	}

	records := make([]providers.Record, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		records = append(records, generateRecord(f, cfg, i))
	}
	return records
}

func generateRecord(f *gofakeit.Faker, cfg ProspectGeneratorConfig, i int) providers.Record {
	country := cfg.Country
	if country == "" {
		country = countries[f.Number(0, len(countries)-1)]
	}
	city := f.City()
	if cities, ok := LocationData[country]; ok {
		city = cities[f.Number(0, len(cities)-1)]
	}
	industry := cfg.Industry
	if industry == "" {
		industry = Industries[f.Number(0, len(Industries)-1)]
	}

	first, last := f.FirstName(), f.LastName()
	company := f.Company()
	employees := f.Number(5, 5000)
	updated := f.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()).UTC()

	rec := providers.Record{
		Provider:      cfg.Provider,
		ExternalID:    fmt.Sprintf("%s-%d-%s", cfg.Provider, i, f.LetterN(8)),
		FirstName:     first,
		LastName:      last,
		Company:       company,
		Title:         titles[f.Number(0, len(titles)-1)],
		Industry:      industry,
		City:          city,
		State:         f.StateAbr(),
		Country:       country,
		EmployeeCount: &employees,
		Website:       "https://" + slug(company) + ".example.com",
		UpdatedAt:     &updated,
	}
	if f.Float64Range(0, 1) < cfg.EmailChance {
		rec.Email = strings.ToLower(fmt.Sprintf("%s.%s@%s.example.com", first, last, slug(company)))
	}
	if f.Float64Range(0, 1) < cfg.PhoneChance {
		rec.Phone = "+1650" + f.Numerify("253####")
	}
	return rec
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "company"
	}
	return b.String()
}
