package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/journal"
	"github.com/roach88/qsync/internal/testutil"
)

func openJournal(t *testing.T, path string) *journal.Journal {
	t.Helper()
	j, err := journal.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_Scopes(t *testing.T) {
	s, err := Open(ScopeSession, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(ScopePersistent, nil)
	assert.Error(t, err)

	_, err = Open("cookie", nil)
	assert.ErrorContains(t, err, "unknown session scope")
}

func TestStores_ExpireOnRead(t *testing.T) {
	wall := testutil.NewManualWall()
	j := openJournal(t, filepath.Join(t.TempDir(), "j.db"))

	stores := map[string]Store{
		"memory":     NewMemory(WithWall(wall)),
		"persistent": &Persistent{journal: j, name: "default", wall: wall},
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			wall.Set(testutil.Epoch)

			tok, err := s.Token(ctx)
			require.NoError(t, err)
			assert.Empty(t, tok)

			require.NoError(t, s.Save(ctx, Session{Token: "abc", Admin: Admin{ID: "a1", Username: "root"}}))
			got, ok, err := s.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "root", got.Admin.Username)
			assert.Equal(t, testutil.Epoch.Add(DefaultTTL), got.ExpiresAt)

			wall.Advance(DefaultTTL)
			tok, err = s.Token(ctx)
			require.NoError(t, err)
			assert.Equal(t, "abc", tok, "valid up to and including the expiry instant")

			wall.Advance(time.Millisecond)
			tok, err = s.Token(ctx)
			require.NoError(t, err)
			assert.Empty(t, tok)

			// Expired sessions are dropped, not just hidden.
			wall.Set(testutil.Epoch)
			_, ok, err = s.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPersistent_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.db")
	wall := testutil.NewManualWall()
	ctx := context.Background()

	j1, err := journal.Open(path)
	require.NoError(t, err)
	s1, err := Open(ScopePersistent, j1, WithWall(wall))
	require.NoError(t, err)
	require.NoError(t, s1.Save(ctx, Session{Token: "keep", ExpiresAt: testutil.Epoch.Add(time.Hour)}))
	require.NoError(t, j1.Close())

	j2 := openJournal(t, path)
	s2, err := Open(ScopePersistent, j2, WithWall(wall))
	require.NoError(t, err)
	tok, err := s2.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "keep", tok)

	require.NoError(t, s2.Clear(ctx))
	tok, err = s2.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}
