package cli

import (
	"bytes"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/backend"
	"github.com/roach88/qsync/internal/config"
	"github.com/roach88/qsync/internal/logging"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// startBackend serves a fresh mock API and points the config at it.
func startBackend(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(backend.New(backend.WithLogger(logging.Discard())))
	t.Cleanup(srv.Close)
	t.Setenv(config.EnvBackendURL, srv.URL)
	return srv.URL
}

// persistentConfig writes a config that keeps sessions and runs in a
// journal under a temp dir.
func persistentConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "qsync.db")
	cfgPath = filepath.Join(dir, "qsync.yaml")
	body := fmt.Sprintf("token_scope: persistent\njournal_path: %s\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, dbPath
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "qsync", cmd.Use)
	assert.Contains(t, cmd.Long, "query cache")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"mock-api", "login", "logout", "list", "query", "mutate", "test", "journal", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("token"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flag    string
		def     string
	}{
		{"mock-api", "addr", "127.0.0.1:8080"},
		{"query", "refresh", "false"},
		{"query", "search", ""},
		{"test", "update", "false"},
		{"test", "filter", ""},
		{"test", "golden", ""},
		{"journal", "db", ""},
		{"journal", "mutation", ""},
		{"login", "email", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "qsync 0.3.0 (key encoding v1)\n", out)
}

func TestListCommand(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "queries:\n  admins\n")
	assert.Contains(t, out, "  doctors/pending\n")
	assert.Contains(t, out, "mutations:\n  approve-doctor\n")
}

func TestBadConfigIsCommandError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token_scope: forever\n"), 0o644))

	_, err := execute(t, "--config", path, "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var cfgErr *config.Error
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}
