// Package providers defines the contact-data search capability and the
// canonical record every vendor adapter normalizes to.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrRateLimited is returned when the vendor throttles the caller.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrUnauthorized is returned when vendor credentials are missing or rejected.
	ErrUnauthorized = errors.New("provider unauthorized")
	// ErrUnknownProvider is returned by the registry for unregistered names.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Filters are the tenant-configured search and intake criteria.
type Filters struct {
	Industries  []string `json:"industries,omitempty"`
	Titles      []string `json:"titles,omitempty"`
	Locations   []string `json:"locations,omitempty"`
	EmployeeMin int      `json:"employee_min,omitempty" validate:"gte=0"`
	EmployeeMax int      `json:"employee_max,omitempty" validate:"gte=0"`
	Keywords    []string `json:"keywords,omitempty"`
	Providers   []string `json:"providers,omitempty"`
}

// Record is a prospect as returned by a vendor, already mapped to canonical fields.
// Empty strings and nil pointers mean "unknown".
type Record struct {
	Provider      string     `json:"provider"`
	ExternalID    string     `json:"external_id"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Company       string     `json:"company,omitempty"`
	Title         string     `json:"title,omitempty"`
	Industry      string     `json:"industry,omitempty"`
	City          string     `json:"city,omitempty"`
	State         string     `json:"state,omitempty"`
	Country       string     `json:"country,omitempty"`
	EmployeeCount *int       `json:"employee_count,omitempty"`
	LinkedInURL   string     `json:"linkedin_url,omitempty"`
	Website       string     `json:"website,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Page is one page of search results. NextPage is 0 when there are no more.
type Page struct {
	Records  []Record
	NextPage int
}

// Provider searches a contact-data vendor.
type Provider interface {
	Name() string
	Search(ctx context.Context, filters Filters, page int) (Page, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding ps.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
