// Package prospects stores deduplicated prospects and ingests provider records.
package prospects

import (
	"strings"
	"time"
)

// Prospect is a deduplicated contact, keyed by (tenant, provider, external id).
type Prospect struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	Provider        string     `json:"provider"`
	ExternalID      string     `json:"external_id"`
	FirstName       string     `json:"first_name,omitempty"`
	LastName        string     `json:"last_name,omitempty"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Company         string     `json:"company,omitempty"`
	Title           string     `json:"title,omitempty"`
	Industry        string     `json:"industry,omitempty"`
	City            string     `json:"city,omitempty"`
	State           string     `json:"state,omitempty"`
	Country         string     `json:"country,omitempty"`
	EmployeeCount   *int       `json:"employee_count,omitempty"`
	LinkedInURL     string     `json:"linkedin_url,omitempty"`
	Website         string     `json:"website,omitempty"`
	SourceUpdatedAt *time.Time `json:"source_updated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FullName joins the known name parts.
func (p Prospect) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Variables returns the template variables this prospect can fill.
func (p Prospect) Variables() map[string]string {
	return map[string]string{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"full_name":  p.FullName(),
		"email":      p.Email,
		"phone":      p.Phone,
		"company":    p.Company,
		"title":      p.Title,
		"city":       p.City,
		"state":      p.State,
		"country":    p.Country,
		"industry":   p.Industry,
	}
}

// Identities lists the recipient identities (email, phone) this prospect can be reached at.
func (p Prospect) Identities() []string {
	var ids []string
	if p.Email != "" {
		ids = append(ids, p.Email)
	}
	if p.Phone != "" {
		ids = append(ids, p.Phone)
	}
	return ids
}
