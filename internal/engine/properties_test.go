package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/syncbridge/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Local: config.SyncProfile{
			Host: "localhost", Port: 5432, Database: "appdb", User: "postgres",
			SSLMode: "prefer", ConnectTimeout: 10, ApplicationName: "syncbridge",
		},
		Remote: config.SyncProfile{
			Host: "db.example.com", Port: 6543, Database: "remotedb", User: "remote_user",
			SSLMode: "require", ConnectTimeout: 10, ApplicationName: "syncbridge",
		},
		LocalHTTPPort:  31416,
		RemoteHTTPPort: 31417,
		WebPort:        31415,
		ServerBaseURL:  "http://127.0.0.1:31415/",
		ClientBaseURL:  "http://127.0.0.1:31415",
		Timezone:       "America/Argentina/Buenos_Aires",
	}
}

func TestJDBCURL(t *testing.T) {
	got := JDBCURL(testConfig().Remote, "America/Argentina/Buenos_Aires")

	assert.True(t, strings.HasPrefix(got, "jdbc:postgresql://db.example.com:6543/remotedb?"))
	assert.Contains(t, got, "sslmode=require")
	assert.Contains(t, got, "ApplicationName=syncbridge")
	assert.Contains(t, got, "connectTimeout=10")
	assert.Contains(t, got, "options=-c+TimeZone%3DAmerica%2FArgentina%2FBuenos_Aires")
}

func TestNormalizeTimezone(t *testing.T) {
	assert.Equal(t, "UTC", NormalizeTimezone("UTC"))
	assert.Equal(t, "Europe/Madrid", NormalizeTimezone("Europe/Madrid"))
	assert.Equal(t, DefaultTimezone, NormalizeTimezone(""))
	assert.Equal(t, DefaultTimezone, NormalizeTimezone("Not/AZone"))
}

func TestBuildConfigs(t *testing.T) {
	client, server := BuildConfigs(testConfig(), "abc-123", "lpw", "rpw")

	assert.Equal(t, ClientEngineName, client.EngineName)
	assert.Equal(t, ClientGroupID, client.GroupID)
	assert.Equal(t, "local-abc-123", client.ExternalID)
	assert.Equal(t, "lpw", client.DBPassword)
	assert.Equal(t, 31416, client.HTTPPort)
	assert.True(t, client.AutoRegistration)
	assert.Equal(t, "http://127.0.0.1:31415/sync/local", client.SyncURL)
	assert.Equal(t, "http://127.0.0.1:31415/sync/remote", client.RegistrationURL)

	assert.Equal(t, ServerEngineName, server.EngineName)
	assert.Equal(t, ServerGroupID, server.GroupID)
	assert.Equal(t, ServerEngineName, server.ExternalID)
	assert.Equal(t, "rpw", server.DBPassword)
	assert.Equal(t, 31417, server.HTTPPort)
	assert.False(t, server.AutoRegistration)
	assert.Equal(t, "http://127.0.0.1:31415/sync/remote", server.SyncURL)
	assert.Empty(t, server.RegistrationURL)
}

func TestServerProperties(t *testing.T) {
	_, server := BuildConfigs(testConfig(), "abc-123", "lpw", "rpw")
	props := server.Properties()

	assert.Contains(t, props, "engine.name=remote\n")
	assert.Contains(t, props, "group.id=server\n")
	assert.Contains(t, props, "auto.registration=false\n")
	assert.Contains(t, props, "registration.url=\n")
	assert.Contains(t, props, "registration.open=true\n")
	assert.Contains(t, props, "conflict.resolve.default=master_wins\n")
	assert.Contains(t, props, "http.port=31417\n")
	assert.NotContains(t, props, "auto.sync.triggers.at.startup")
}

func TestClientProperties(t *testing.T) {
	client, _ := BuildConfigs(testConfig(), "abc-123", "lpw", "rpw")
	props := client.Properties()

	assert.Contains(t, props, "engine.name=local\n")
	assert.Contains(t, props, "group.id=client\n")
	assert.Contains(t, props, "external.id=local-abc-123\n")
	assert.Contains(t, props, "auto.registration=true\n")
	assert.Contains(t, props, "auto.sync.triggers.at.startup=true\n")
	assert.Contains(t, props, "registration.url=http://127.0.0.1:31415/sync/remote\n")
	assert.Contains(t, props, "conflict.resolve.default=master_wins\n")
	assert.NotContains(t, props, "registration.open")
}

func TestWriteProperties(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "engines")
	client, server := BuildConfigs(testConfig(), "abc-123", "lpw", "rpw")

	clientPath, serverPath, err := WriteProperties(dir, client, server)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "local.properties"), clientPath)
	assert.Equal(t, filepath.Join(dir, "remote.properties"), serverPath)

	data, err := os.ReadFile(clientPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "engine.name=local")
}

func TestEnsureCommonPropertiesDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symmetric-ds.properties")

	require.NoError(t, EnsureCommonProperties(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rest.api.enabled=true")

	// Operator edits survive restarts.
	require.NoError(t, os.WriteFile(path, []byte("edited=yes\n"), 0644))
	require.NoError(t, EnsureCommonProperties(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "edited=yes\n", string(data))
}

func TestMirrorProperties(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "local.properties")
	require.NoError(t, os.WriteFile(src, []byte("engine.name=local\n"), 0600))

	dstDir := filepath.Join(t.TempDir(), "install", "engines")
	require.NoError(t, MirrorProperties(dstDir, src))

	data, err := os.ReadFile(filepath.Join(dstDir, "local.properties"))
	require.NoError(t, err)
	assert.Equal(t, "engine.name=local\n", string(data))
}
