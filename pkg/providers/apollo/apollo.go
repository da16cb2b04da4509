// Package apollo adapts the Apollo people search API to providers.Provider.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jordanlanch/outreach/pkg/providers"
	"github.com/jordanlanch/outreach/pkg/secrets"
)

const (
	// Slug is the integration slug used for credentials and provider names.
	Slug = "apollo"

	defaultBaseURL = "https://api.apollo.io"
	searchPath     = "/v1/mixed_people/search"
	pageSize       = 100
)

// Client searches Apollo. The API key is resolved from the secret store on every call.
type Client struct {
	baseURL    string
	secrets    secrets.Store
	httpClient *http.Client
}

// New creates an Apollo client. An empty baseURL uses the public endpoint.
func New(baseURL string, store secrets.Store) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secrets: store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements providers.Provider.
func (c *Client) Name() string { return Slug }

type searchRequest struct {
	Page                 int      `json:"page"`
	PerPage              int      `json:"per_page"`
	PersonTitles         []string `json:"person_titles,omitempty"`
	PersonLocations      []string `json:"person_locations,omitempty"`
	OrganizationIndustry []string `json:"organization_industry_tag_ids,omitempty"`
	EmployeeRanges       []string `json:"organization_num_employees_ranges,omitempty"`
	Keywords             string   `json:"q_keywords,omitempty"`
}

type searchResponse struct {
	People     []person `json:"people"`
	Pagination struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"pagination"`
}

type person struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Title        string `json:"title"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	LinkedInURL  string `json:"linkedin_url"`
	UpdatedAt    string `json:"updated_at"`
	PhoneNumbers []struct {
		SanitizedNumber string `json:"sanitized_number"`
	} `json:"phone_numbers"`
	Organization *struct {
		Name                  string `json:"name"`
		Industry              string `json:"industry"`
		WebsiteURL            string `json:"website_url"`
		EstimatedNumEmployees *int   `json:"estimated_num_employees"`
	} `json:"organization"`
}

// Search implements providers.Provider.
func (c *Client) Search(ctx context.Context, filters providers.Filters, page int) (providers.Page, error) {
	if page < 1 {
		page = 1
	}

	apiKey, err := c.secrets.Resolve(ctx, Slug, "api_key")
	if err != nil {
		return providers.Page{}, fmt.Errorf("%w: %v", providers.ErrUnauthorized, err)
	}

	payload, err := json.Marshal(buildRequest(filters, page))
	if err != nil {
		return providers.Page{}, fmt.Errorf("failed to marshal search: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(payload))
	if err != nil {
		return providers.Page{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.Page{}, fmt.Errorf("apollo search failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return providers.Page{}, providers.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return providers.Page{}, providers.ErrUnauthorized
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return providers.Page{}, fmt.Errorf("apollo search failed with status %d: %s", resp.StatusCode, body)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return providers.Page{}, fmt.Errorf("failed to decode apollo response: %w", err)
	}

	result := providers.Page{Records: make([]providers.Record, 0, len(out.People))}
	for _, p := range out.People {
		result.Records = append(result.Records, p.record())
	}
	if out.Pagination.Page < out.Pagination.TotalPages && len(out.People) > 0 {
		result.NextPage = page + 1
	}
	return result, nil
}

func buildRequest(f providers.Filters, page int) searchRequest {
	req := searchRequest{
		Page:                 page,
		PerPage:              pageSize,
		PersonTitles:         f.Titles,
		PersonLocations:      f.Locations,
		OrganizationIndustry: f.Industries,
		Keywords:             strings.Join(f.Keywords, " "),
	}
	if f.EmployeeMin > 0 || f.EmployeeMax > 0 {
		upper := ""
		if f.EmployeeMax > 0 {
			upper = fmt.Sprint(f.EmployeeMax)
		}
		req.EmployeeRanges = []string{fmt.Sprintf("%d,%s", f.EmployeeMin, upper)}
	}
	return req
}

func (p person) record() providers.Record {
	r := providers.Record{
		Provider:    Slug,
		ExternalID:  p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Email:       p.Email,
		Title:       p.Title,
		City:        p.City,
		State:       p.State,
		Country:     p.Country,
		LinkedInURL: p.LinkedInURL,
	}
	if len(p.PhoneNumbers) > 0 {
		r.Phone = p.PhoneNumbers[0].SanitizedNumber
	}
	if o := p.Organization; o != nil {
		r.Company = o.Name
		r.Industry = o.Industry
		r.Website = o.WebsiteURL
		r.EmployeeCount = o.EstimatedNumEmployees
	}
	if t, err := time.Parse(time.RFC3339, p.UpdatedAt); err == nil {
		r.UpdatedAt = &t
	}
	return r
}
