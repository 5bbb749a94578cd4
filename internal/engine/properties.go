package engine

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/logger"
)

// Engine and topology identifiers. These are wire-visible names stored in
// the replication system tables of both databases; changing them orphans
// every registered node.
const (
	ServerEngineName = "remote"
	ClientEngineName = "local"

	ServerGroupID = "server"
	ClientGroupID = "client"
)

// ConflictPolicy is the only conflict resolution mode this deployment runs.
// The remote database is authoritative; letting clients win would silently
// diverge replicas that were offline during an edit.
const ConflictPolicy = "master_wins"

// DefaultTimezone is used when the configured zone fails to load.
const DefaultTimezone = "America/Argentina/Buenos_Aires"

// EngineConfig is the resolved per-engine configuration. One instance per
// side; both render to properties files the hosting web server discovers at
// startup.
type EngineConfig struct {
	EngineName string
	GroupID    string
	ExternalID string

	JDBCURL    string
	DBUser     string
	DBPassword string

	HTTPPort        int
	SyncURL         string
	RegistrationURL string

	// AutoRegistration is asymmetric: the client registers itself against
	// the server, the server never registers anywhere.
	AutoRegistration bool

	Timezone string
}

// NormalizeTimezone validates an IANA zone identifier and falls back to the
// default when the zone is unknown. Both the JVM and the database reject
// connections carrying an invalid zone, so an unvalidated passthrough would
// take the whole engine down.
func NormalizeTimezone(tz string) string {
	if tz == "" {
		return DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		logger.Warn("unknown timezone, falling back", "timezone", tz, "fallback", DefaultTimezone)
		return DefaultTimezone
	}
	return tz
}

// JDBCURL builds the PostgreSQL JDBC connection URL for a profile. The
// TimeZone session option is forced through the options parameter because
// the JDBC driver otherwise sends the JVM's zone alias, which newer server
// versions reject.
func JDBCURL(p config.SyncProfile, tz string) string {
	options := url.QueryEscape("-c TimeZone=" + tz)
	params := []string{
		"sslmode=" + p.SSLMode,
		"ApplicationName=" + p.ApplicationName,
		fmt.Sprintf("connectTimeout=%d", p.ConnectTimeout),
		"options=" + options,
	}
	return fmt.Sprintf("jdbc:postgresql://%s:%d/%s?%s",
		p.Host, p.Port, p.Database, strings.Join(params, "&"))
}

// BuildConfigs resolves the client and server engine configurations from
// the loaded config, the device identity, and already-resolved passwords.
func BuildConfigs(cfg *config.Config, deviceID, localPassword, remotePassword string) (client, server EngineConfig) {
	tz := NormalizeTimezone(cfg.Timezone)
	serverBase := strings.TrimRight(cfg.ServerBaseURL, "/")
	clientBase := strings.TrimRight(cfg.ClientBaseURL, "/")

	server = EngineConfig{
		EngineName:       ServerEngineName,
		GroupID:          ServerGroupID,
		ExternalID:       ServerEngineName,
		JDBCURL:          JDBCURL(cfg.Remote, tz),
		DBUser:           cfg.Remote.User,
		DBPassword:       remotePassword,
		HTTPPort:         cfg.RemoteHTTPPort,
		SyncURL:          serverBase + "/sync/" + ServerEngineName,
		RegistrationURL:  "",
		AutoRegistration: false,
		Timezone:         tz,
	}

	client = EngineConfig{
		EngineName:       ClientEngineName,
		GroupID:          ClientGroupID,
		ExternalID:       ClientEngineName + "-" + deviceID,
		JDBCURL:          JDBCURL(cfg.Local, tz),
		DBUser:           cfg.Local.User,
		DBPassword:       localPassword,
		HTTPPort:         cfg.LocalHTTPPort,
		SyncURL:          clientBase + "/sync/" + ClientEngineName,
		RegistrationURL:  serverBase + "/sync/" + ServerEngineName,
		AutoRegistration: true,
		Timezone:         tz,
	}
	return client, server
}

// Properties renders the engine configuration as a properties document.
func (c EngineConfig) Properties() string {
	lines := []string{
		"engine.name=" + c.EngineName,
		"group.id=" + c.GroupID,
		"external.id=" + c.ExternalID,
		"db.driver=org.postgresql.Driver",
		"db.url=" + c.JDBCURL,
		"db.user=" + c.DBUser,
		"db.password=" + c.DBPassword,
		"auto.create=true",
		"auto.sync=true",
		"auto.reload=true",
		fmt.Sprintf("http.port=%d", c.HTTPPort),
		"sync.url=" + c.SyncURL,
	}

	if c.AutoRegistration {
		lines = append(lines,
			"auto.registration=true",
			"auto.sync.triggers.at.startup=true",
			"registration.url="+c.RegistrationURL,
		)
	} else {
		// Root engine: registration.url stays explicitly empty and the
		// registration endpoint is left open for clients.
		lines = append(lines,
			"auto.registration=false",
			"registration.url=",
			"registration.open=true",
			"route.simple=true",
			"rest.api.user=sym_user",
			"rest.api.password=sym_password",
		)
	}

	lines = append(lines,
		"channel.default=true",
		"data.create_time.timezone="+c.Timezone,
		"conflict.resolve.default="+ConflictPolicy,
	)
	return strings.Join(lines, "\n") + "\n"
}

// commonProperties is the shared engine configuration, written once and
// never overwritten so operator edits survive restarts.
const commonProperties = `java.heap.max.size=256m
rest.api.enabled=true
http.timeout.ms=30000
log.dir=logs
`

// EnsureCommonProperties writes the shared properties file if absent.
func EnsureCommonProperties(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(commonProperties), 0644)
}

// WriteProperties renders both engine configurations into the engines
// directory and returns their paths. Regenerated on every run; the
// properties files are derived state, the config document is the source.
func WriteProperties(enginesDir string, client, server EngineConfig) (clientPath, serverPath string, err error) {
	if err := os.MkdirAll(enginesDir, 0755); err != nil {
		return "", "", fmt.Errorf("error creating engines directory: %w", err)
	}

	clientPath = filepath.Join(enginesDir, client.EngineName+".properties")
	serverPath = filepath.Join(enginesDir, server.EngineName+".properties")

	if err := os.WriteFile(clientPath, []byte(client.Properties()), 0600); err != nil {
		return "", "", fmt.Errorf("error writing %s: %w", clientPath, err)
	}
	if err := os.WriteFile(serverPath, []byte(server.Properties()), 0600); err != nil {
		return "", "", fmt.Errorf("error writing %s: %w", serverPath, err)
	}
	return clientPath, serverPath, nil
}

// MirrorProperties copies generated properties files into the engine
// installation's own engines directory, where the hosting web server
// actually looks for them.
func MirrorProperties(installEnginesDir string, paths ...string) error {
	if err := os.MkdirAll(installEnginesDir, 0755); err != nil {
		return err
	}
	for _, src := range paths {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", src, err)
		}
		dst := filepath.Join(installEnginesDir, filepath.Base(src))
		if err := os.WriteFile(dst, data, 0600); err != nil {
			return fmt.Errorf("error mirroring %s: %w", dst, err)
		}
	}
	return nil
}
