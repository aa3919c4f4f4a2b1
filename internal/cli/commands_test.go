package cli

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/backend"
	"github.com/roach88/qsync/internal/logging"
)

func TestQueryCommand_Text(t *testing.T) {
	startBackend(t)

	out, err := execute(t, "query", "specialities", "--token", "dev-token")
	require.NoError(t, err)
	assert.Contains(t, out, "specialities: success (fetches: 1)\n")
	assert.Contains(t, out, `"title": "Cardiology"`)
}

func TestQueryCommand_JSONWithSearch(t *testing.T) {
	startBackend(t)

	out, err := execute(t, "--format", "json", "query", "doctors/all", "--search", "CHEN", "--token", "dev-token")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Name    string           `json:"name"`
			KeyHash string           `json:"key_hash"`
			Data    []map[string]any `json:"data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "doctors/all", resp.Data.Name)
	assert.Len(t, resp.Data.KeyHash, 64)
	require.Len(t, resp.Data.Data, 1)
	assert.Equal(t, "d3", resp.Data.Data[0]["_id"])
}

func TestQueryCommand_Unauthorized(t *testing.T) {
	startBackend(t)

	out, err := execute(t, "query", "patients")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_QUERY_FAILED]")
	assert.Contains(t, out, "patients: error")
}

func TestQueryCommand_UnknownQuery(t *testing.T) {
	_, err := execute(t, "query", "doctors")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown query "doctors"`)
}

func TestMutateCommand(t *testing.T) {
	startBackend(t)

	out, err := execute(t, "mutate", "approve-doctor", "d1", "--token", "dev-token")
	require.NoError(t, err)
	assert.Contains(t, out, "approve-doctor d1: success")

	out, err = execute(t, "mutate", "approve-doctor", "d1", "--token", "dev-token")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_MUTATION_FAILED]")
	assert.Contains(t, out, "Doctor already approved")
}

func TestMutateCommand_JSON(t *testing.T) {
	startBackend(t)

	out, err := execute(t, "--format", "json", "mutate", "delete-banner", "nope", "--token", "dev-token")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMutationFailed, resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(404), details["http_status"])
}

func TestMutateCommand_UnknownMutation(t *testing.T) {
	_, err := execute(t, "mutate", "launch-rocket", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoginCommand_SessionScopePrintsToken(t *testing.T) {
	startBackend(t)

	out, err := execute(t, "login", "--email", "root@console.test", "--password", "rootroot")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as root (a1)")
	assert.Contains(t, out, "pass --token ")
}

func TestLoginCommand_BadPassword(t *testing.T) {
	startBackend(t)

	out, err := execute(t, "login", "--email", "root@console.test", "--password", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Invalid email or password")
}

func TestPersistentSessionAndJournal(t *testing.T) {
	startBackend(t)
	cfg, db := persistentConfig(t)

	_, err := execute(t, "--config", cfg, "login", "--email", "root@console.test", "--password", "rootroot")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "query", "admins")
	require.NoError(t, err, out)
	assert.Contains(t, out, "admins: success")

	_, err = execute(t, "--config", cfg, "mutate", "delete-admin", "a2")
	require.NoError(t, err)
	_, err = execute(t, "--config", cfg, "mutate", "delete-admin", "a1")
	require.Error(t, err, "the signed-in admin cannot delete itself")

	out, err = execute(t, "journal", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "delete-admin")
	assert.Contains(t, out, `error="you cannot delete your own account"`)

	out, err = execute(t, "--format", "json", "--config", cfg, "journal", "--mutation", "delete-admin", "--row", "a2")
	require.NoError(t, err)
	var resp struct {
		Data JournalResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, "success", string(resp.Data.Entries[0].Status))
	assert.Len(t, resp.Data.Entries[0].InputHash, 64)

	_, err = execute(t, "--config", cfg, "logout")
	require.NoError(t, err)
	_, err = execute(t, "--config", cfg, "query", "admins")
	require.Error(t, err, "signed out")
}

func TestJournalCommand_Errors(t *testing.T) {
	_, err := execute(t, "journal", "--db", "/nonexistent/qsync.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")

	_, err = execute(t, "journal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no journal")

	_, err = execute(t, "journal", "--db", "x.db", "--row", "a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--row needs --mutation")
}

func TestServeMock(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMock(ctx, ln, backend.New(backend.WithLogger(logging.Discard()))) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveMock did not return after cancel")
	}
}
