package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// run executes the app with args and returns what it wrote to stdout.
func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(ctx, append([]string{"tokenkeeper"}, args...))
	return stdout.String(), err
}

// writeConfig writes a config file for a badger store in a temp dir.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tokenkeeper.yaml")
	content := "storage:\n" +
		"  backend: badger\n" +
		"  badger:\n" +
		"    dir: " + filepath.Join(dir, "data") + "\n" +
		"log:\n" +
		"  level: error\n" +
		extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func TestApp(t *testing.T) {
	app := App()
	assert.Equal(t, "tokenkeeper", app.Name)

	names := make(map[string]bool)
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}
	for _, name := range []string{"serve", "sweep", "token", "config", "version"} {
		assert.True(t, names[name], "missing command %s", name)
	}
}

func TestApp_InvalidOutput(t *testing.T) {
	_, err := run(t, context.Background(), "-o", "xml", "version")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestVersion(t *testing.T) {
	out, err := run(t, context.Background(), "-o", "json", "version")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestToken_Lifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := writeConfig(t, "")

	out, err := run(t, ctx, "-c", cfg, "-o", "json", "token", "issue", "--subject", "user-1", "--ttl", "1h")
	require.NoError(t, err)
	var issued struct {
		TokenID   string    `json:"token_id"`
		Secret    string    `json:"secret"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	require.True(t, strings.HasPrefix(issued.Secret, "tks_"), "secret %q", issued.Secret)
	assert.True(t, strings.HasPrefix(issued.TokenID, "tktk-"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, time.Minute)

	// The store is closed between commands; the record survives.
	out, err = run(t, ctx, "-c", cfg, "-o", "json", "token", "validate", issued.Secret)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"valid","subject_id":"user-1"}`, out)

	out, err = run(t, ctx, "-c", cfg, "-o", "json", "token", "revoke", issued.Secret)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"revoked"}`, out)

	out, err = run(t, ctx, "-c", cfg, "-o", "json", "token", "validate", issued.Secret)
	assert.Equal(t, 1, exitCode(err))
	assert.JSONEq(t, `{"status":"revoked"}`, out)

	out, err = run(t, ctx, "-c", cfg, "token", "inspect", issued.Secret)
	require.NoError(t, err)
	assert.Contains(t, out, issued.TokenID)
	assert.Contains(t, out, "revoked_at")
	assert.NotContains(t, out, issued.Secret, "inspect never prints the secret")
}

func TestToken_IssueDefaultTTL(t *testing.T) {
	cfg := writeConfig(t, "token:\n  default_ttl: 15m\n")

	out, err := run(t, context.Background(), "-c", cfg, "-o", "yaml", "token", "issue", "-s", "svc")
	require.NoError(t, err)
	assert.Contains(t, out, "secret: tks_")
}

func TestToken_NotFound(t *testing.T) {
	ctx := context.Background()
	cfg := writeConfig(t, "")

	out, err := run(t, ctx, "-c", cfg, "-o", "json", "token", "validate", "tks_not-a-real-secret")
	assert.Equal(t, 1, exitCode(err))
	assert.JSONEq(t, `{"status":"not_found"}`, out)

	_, err = run(t, ctx, "-c", cfg, "token", "revoke", "tks_not-a-real-secret")
	assert.Equal(t, 1, exitCode(err))

	_, err = run(t, ctx, "-c", cfg, "token", "inspect", "tks_not-a-real-secret")
	assert.Equal(t, 1, exitCode(err))
}

func TestToken_ArgumentErrors(t *testing.T) {
	ctx := context.Background()
	cfg := writeConfig(t, "")

	_, err := run(t, ctx, "-c", cfg, "token", "validate")
	assert.Equal(t, 2, exitCode(err))

	_, err = run(t, ctx, "-c", cfg, "token", "issue")
	assert.ErrorContains(t, err, "subject")

	_, err = run(t, ctx, "-c", cfg, "token", "issue", "--subject", "u", "--ttl", "-1s")
	assert.ErrorContains(t, err, "ttl must be positive")
}

func TestToken_MemoryBackendRefused(t *testing.T) {
	t.Setenv("TOKENKEEPER_STORAGE_BACKEND", "memory")

	_, err := run(t, context.Background(), "token", "issue", "--subject", "u")
	assert.ErrorContains(t, err, "durable storage backend")
}

func TestToken_RevokePurge(t *testing.T) {
	ctx := context.Background()
	cfg := writeConfig(t, "")

	out, err := run(t, ctx, "-c", cfg, "-o", "json", "token", "issue", "--subject", "u")
	require.NoError(t, err)
	var issued struct {
		Secret string `json:"secret"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &issued))

	out, err = run(t, ctx, "-c", cfg, "-o", "json", "token", "revoke", "--purge", issued.Secret)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"purged"}`, out)

	out, err = run(t, ctx, "-c", cfg, "-o", "json", "token", "validate", issued.Secret)
	assert.Equal(t, 1, exitCode(err))
	assert.JSONEq(t, `{"status":"not_found"}`, out)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	cfg := writeConfig(t, "")

	for _, ttl := range []string{"1ms", "1ms", "1h"} {
		_, err := run(t, ctx, "-c", cfg, "token", "issue", "--subject", "u", "--ttl", ttl)
		require.NoError(t, err)
	}
	time.Sleep(10 * time.Millisecond)

	out, err := run(t, ctx, "-c", cfg, "-o", "json", "sweep")
	require.NoError(t, err)
	var res sweepOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Deleted)
	assert.Zero(t, res.Failed)

	out, err = run(t, ctx, "-c", cfg, "-o", "json", "sweep")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Zero(t, res.Deleted)
}

func TestConfigShow_MasksCredentials(t *testing.T) {
	t.Setenv("TOKENKEEPER_STORAGE_REDIS_PASSWORD", "hunter22-hunter22")

	out, err := run(t, context.Background(), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: memory")
	assert.Contains(t, out, "interval: 1m0s")
	assert.NotContains(t, out, "hunter22-hunter22")
}

func TestConfigValidate(t *testing.T) {
	ctx := context.Background()

	good := writeConfig(t, "")
	out, err := run(t, ctx, "config", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, ": ok")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cleaner:\n  interval: 0s\n"), 0o600))
	_, err = run(t, ctx, "config", "validate", bad)
	assert.ErrorContains(t, err, "cleaner.interval")

	_, err = run(t, ctx, "config", "validate")
	assert.Equal(t, 2, exitCode(err))
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := writeConfig(t, "metrics:\n  addr: 127.0.0.1:0\n")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := run(t, ctx, "-c", cfg, "serve")
	assert.NoError(t, err)
}
