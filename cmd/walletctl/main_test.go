package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/identity"
	"github.com/nkiryanov/venuewallet/internal/testutil"
)

func noenv(string) string { return "" }

func Test_run_token(t *testing.T) {
	accountID := uuid.New()
	var out bytes.Buffer

	err := run(context.Background(), noenv, []string{"token", "-a", accountID.String(), "-s", "secret"}, &out)
	require.NoError(t, err)

	var issued struct {
		AccountID uuid.UUID `json:"account_id"`
		Token     string    `json:"token"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &issued))
	require.Equal(t, accountID, issued.AccountID)

	p, err := identity.New(identity.Config{SecretKey: "secret"})
	require.NoError(t, err)
	parsed, err := p.Parse(issued.Token)
	require.NoError(t, err)
	require.Equal(t, accountID, parsed, "token is accepted by the wallet server")
}

func Test_run_usage(t *testing.T) {
	for _, args := range [][]string{nil, {"destroy"}} {
		err := run(context.Background(), noenv, args, &bytes.Buffer{})
		require.ErrorIs(t, err, errUsage)
	}

	err := run(context.Background(), noenv, []string{"archive"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "--account is required")

	err = run(context.Background(), noenv, []string{"token"}, &bytes.Buffer{})
	require.Error(t, err, "secret key is required to issue tokens")
}

func Test_run_admin(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	directoryFile, err := filepath.Abs("../../config/merchants.yaml")
	require.NoError(t, err)
	env := map[string]string{
		"DATABASE_URI":   pg.DSN,
		"DIRECTORY_FILE": directoryFile,
	}
	getenv := func(key string) string { return env[key] }
	accountID := uuid.New().String()

	ctl := func(args ...string) (string, error) {
		var out bytes.Buffer
		err := run(context.Background(), getenv, args, &out)
		return out.String(), err
	}

	out, err := ctl("provision", "-a", accountID)
	require.NoError(t, err)
	require.Contains(t, out, accountID)

	out, err = ctl("award", "-a", accountID, "-m", "cafe-aurora", "-p", "600")
	require.NoError(t, err)
	var card struct {
		Points int64
		Tier   string
	}
	require.NoError(t, json.Unmarshal([]byte(out), &card))
	require.Equal(t, int64(600), card.Points)
	require.Equal(t, "silver", card.Tier)

	_, err = ctl("reconcile", "-a", accountID)
	require.NoError(t, err)

	_, err = ctl("archive", "-a", accountID)
	require.NoError(t, err)

	_, err = ctl("award", "-a", accountID, "-m", "cafe-aurora", "-p", "1")
	require.ErrorIs(t, err, apperrors.ErrAccountArchived)
}
