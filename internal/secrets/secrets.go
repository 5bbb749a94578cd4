// Package secrets resolves database credentials across the stores a
// deployment may use: the platform credential vault, environment variables,
// a connection URL, or an explicit fallback. The same logical user can carry
// different credentials per environment (dev laptop, CI, container) without
// code changes, so resolution walks an ordered chain and never fails hard.
// An unresolved credential surfaces later as a database auth error, which is
// a far better diagnostic than aborting the whole pipeline here.
package secrets

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/syncbridge/syncbridge/internal/logger"
)

// Store is the subset of the platform secret store the resolver needs.
type Store interface {
	Get(service, account string) (string, error)
}

// systemStore backs Store with the OS credential vault.
type systemStore struct{}

func (systemStore) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

// passwordEnvVars are checked, in order, when the secret store has no entry.
var passwordEnvVars = []string{
	"PGPASSWORD",
	"POSTGRES_PASSWORD",
	"DB_PASSWORD",
	"PG_PASS",
	"DATABASE_PASSWORD",
}

// Resolver resolves passwords for (user, host, port) triples.
type Resolver struct {
	Service string
	Store   Store
}

// NewResolver returns a Resolver backed by the platform secret store.
func NewResolver(service string) *Resolver {
	return &Resolver{Service: service, Store: systemStore{}}
}

// accountKeys returns the candidate account names, most specific first.
func accountKeys(user, host string, port int) []string {
	return []string{
		fmt.Sprintf("%s@%s:%d", user, host, port),
		fmt.Sprintf("%s@%s", user, host),
		user,
	}
}

// Resolve returns the password for the given triple. Lookup order: secret
// store under user@host:port, user@host, user; then the fixed env var list;
// then the password embedded in DATABASE_URL; then fallback. Returns ""
// (never an error) on total miss.
func (r *Resolver) Resolve(user, host string, port int, fallback string) string {
	if r.Store != nil {
		for _, account := range accountKeys(user, host, port) {
			pwd, err := r.Store.Get(r.Service, account)
			if err == nil && pwd != "" {
				return pwd
			}
		}
	}

	for _, key := range passwordEnvVars {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}

	if pwd := passwordFromURL(os.Getenv("DATABASE_URL")); pwd != "" {
		return pwd
	}

	if fallback == "" {
		logger.Debug("credential unresolved, propagating empty password",
			"user", user, "host", host, "port", port)
	}
	return fallback
}

// passwordFromURL extracts the password from a postgres:// connection URL.
func passwordFromURL(raw string) string {
	if !strings.HasPrefix(raw, "postgres://") && !strings.HasPrefix(raw, "postgresql://") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return ""
	}
	pwd, _ := u.User.Password()
	return pwd
}
