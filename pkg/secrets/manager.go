// Package secrets resolves integration credentials by (integration slug, field).
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"

	"github.com/jordanlanch/outreach/pkg/logger"
)

// ErrNotFound is returned when a credential is not configured.
var ErrNotFound = errors.New("secret not found")

// Store resolves a single credential field of an integration.
type Store interface {
	Resolve(ctx context.Context, slug, field string) (string, error)
}

// Config holds secrets backend configuration.
type Config struct {
	Backend       string        // "env" or "aws-secrets-manager"
	AWSRegion     string        // AWS region for Secrets Manager
	Prefix        string        // secret id prefix, e.g. "outreach/"
	CacheDuration time.Duration // in-process cache lifetime
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Backend:       "env",
		AWSRegion:     "us-east-1",
		Prefix:        "outreach/",
		CacheDuration: 5 * time.Minute,
	}
}

// NewStore creates the store selected by cfg.Backend.
func NewStore(cfg Config, log logger.Logger) (Store, error) {
	switch cfg.Backend {
	case "aws-secrets-manager", "aws":
		log.Info("using aws secrets manager", "region", cfg.AWSRegion)
		return NewAWSStore(cfg, log)
	case "env", "environment", "":
		log.Info("using environment variables for integration secrets")
		return NewEnvStore(), nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", cfg.Backend)
	}
}

// EnvKey is the environment variable holding slug's field,
// e.g. ("apollo", "api_key") -> OUTREACH_APOLLO_API_KEY.
func EnvKey(slug, field string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return "OUTREACH_" + strings.ToUpper(r.Replace(slug)) + "_" + strings.ToUpper(r.Replace(field))
}

// EnvStore reads credentials from the environment on every call.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore creates an environment-backed store.
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

// Resolve implements Store.
func (s *EnvStore) Resolve(_ context.Context, slug, field string) (string, error) {
	key := EnvKey(slug, field)
	value, ok := s.lookup(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, nil
}

// StaticStore serves fixed credentials. Keys are "slug.field".
type StaticStore map[string]string

// Resolve implements Store.
func (s StaticStore) Resolve(_ context.Context, slug, field string) (string, error) {
	if v, ok := s[slug+"."+field]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s.%s", ErrNotFound, slug, field)
}

// secretsAPI is the slice of the Secrets Manager client the store uses.
type secretsAPI interface {
	GetSecretValueWithContext(aws.Context, *secretsmanager.GetSecretValueInput, ...request.Option) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore loads one JSON secret per integration ("<prefix><slug>") and
// serves its fields. Documents are cached in memory for CacheDuration.
type AWSStore struct {
	client secretsAPI
	cfg    Config
	log    logger.Logger

	mu    sync.RWMutex
	cache map[string]cachedSecret
	now   func() time.Time
}

type cachedSecret struct {
	fields    map[string]string
	expiresAt time.Time
}

// NewAWSStore creates a Secrets Manager backed store.
func NewAWSStore(cfg Config, log logger.Logger) (*AWSStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return newAWSStore(secretsmanager.New(sess), cfg, log), nil
}

func newAWSStore(client secretsAPI, cfg Config, log logger.Logger) *AWSStore {
	return &AWSStore{
		client: client,
		cfg:    cfg,
		log:    log,
		cache:  make(map[string]cachedSecret),
		now:    time.Now,
	}
}

// Resolve implements Store.
func (s *AWSStore) Resolve(ctx context.Context, slug, field string) (string, error) {
	fields, err := s.document(ctx, slug)
	if err != nil {
		return "", err
	}
	value, ok := fields[field]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s.%s", ErrNotFound, slug, field)
	}
	return value, nil
}

// Invalidate drops every cached document.
func (s *AWSStore) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]cachedSecret)
	s.mu.Unlock()
}

func (s *AWSStore) document(ctx context.Context, slug string) (map[string]string, error) {
	s.mu.RLock()
	cached, ok := s.cache[slug]
	s.mu.RUnlock()
	if ok && s.now().Before(cached.expiresAt) {
		return cached.fields, nil
	}

	id := s.cfg.Prefix + slug
	out, err := s.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", id)
	}

	fields := make(map[string]string)
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object of strings: %w", id, err)
	}

	s.mu.Lock()
	s.cache[slug] = cachedSecret{fields: fields, expiresAt: s.now().Add(s.cfg.CacheDuration)}
	s.mu.Unlock()

	s.log.Debug("loaded integration secret", "secret_id", id)
	return fields, nil
}
