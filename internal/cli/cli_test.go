package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "github.com/garyjia/sygfp/internal/interfaces/http"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SYGFP_JWT_SECRET", "cli-test-secret")
	t.Setenv("SYGFP_URL_SECRET", "cli-url-secret")
	t.Setenv("SYGFP_DB_PATH", filepath.Join(t.TempDir(), "sygfp.db"))
}

// run executes the root command with JSON output and no config file.
func run(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", "", "--format", "json"}, args...))
	return out, cmd.Execute()
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"migrate"}, {"user", "add"}, {"user", "grant"}, {"delegation", "add"}, {"delegation", "revoke"},
		{"budget", "add"}, {"sequence", "next"}, {"token"}, {"timeline"}, {"history"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "migrate"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMigrate(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "up to date")
}

func TestUserDelegationAndToken(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "user", "add", "--id", "u-dg", "--email", "dg@arti.ci", "--name", "Directeur Général", "--role", "DG")
	require.NoError(t, err)
	_, err = run(t, "user", "add", "--id", "u-daaf", "--email", "daaf@arti.ci", "--name", "DAAF", "--direction", "daaf", "--role", "daaf")
	require.NoError(t, err)

	t.Run("duplicate user", func(t *testing.T) {
		_, err := run(t, "user", "add", "--id", "u-dg", "--email", "dg2@arti.ci", "--name", "Doublon")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := run(t, "user", "add", "--email", "not-an-email", "--name", "X")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := run(t, "user", "grant", "--user", "u-daaf", "--role", "PRESIDENT")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown role")
	})

	t.Run("interim", func(t *testing.T) {
		out, err := run(t, "delegation", "add", "--grantor", "u-dg", "--delegate", "u-daaf", "--role", "DG",
			"--from", "2025-07-01", "--to", "2025-07-31", "--interim", "--motif", "congés")
		require.NoError(t, err)

		var d struct {
			ID   int64  `json:"id"`
			Kind string `json:"kind"`
			Role string `json:"role"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &d))
		assert.NotZero(t, d.ID)
		assert.Equal(t, "interim", d.Kind)
		assert.Equal(t, "DG", d.Role)
	})

	t.Run("delegation to an unknown user", func(t *testing.T) {
		_, err := run(t, "delegation", "add", "--grantor", "u-dg", "--delegate", "ghost", "--role", "DG",
			"--from", "2025-07-01", "--to", "2025-07-31")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("reversed period", func(t *testing.T) {
		_, err := run(t, "delegation", "add", "--grantor", "u-dg", "--delegate", "u-daaf", "--role", "DG",
			"--from", "2025-07-31", "--to", "2025-07-01")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("token", func(t *testing.T) {
		out, err := run(t, "token", "--user", "u-daaf")
		require.NoError(t, err)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		claims, err := httpapi.NewTokenIssuer("cli-test-secret", "sygfp", 0).Parse(resp["token"])
		require.NoError(t, err)
		assert.Equal(t, "u-daaf", claims.UserID)

		_, err = run(t, "token", "--user", "ghost")
		require.Error(t, err)
	})
}

func TestBudgetAdd(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "budget", "add", "--code", "6221", "--libelle", "Frais de mission", "--exercice", "2025", "--dotation", "150000000")
	require.NoError(t, err)
	var line struct {
		Code     string `json:"code"`
		Dotation string `json:"dotation"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "6221", line.Code)
	assert.Equal(t, "150000000", line.Dotation)

	_, err = run(t, "budget", "add", "--code", "6222", "--dotation", "-5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, "budget", "add", "--code", "6223", "--dotation", "10", "--exercice", "1990")
	require.Error(t, err)
}

func TestSequenceNext(t *testing.T) {
	setupEnv(t)

	next := func(args ...string) int64 {
		out, err := run(t, append([]string{"sequence", "next", "--exercice", "2025"}, args...)...)
		require.NoError(t, err)
		var ref struct {
			FullCode  string `json:"full_code"`
			NumberRaw int64  `json:"number_raw"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &ref))
		assert.NotEmpty(t, ref.FullCode)
		return ref.NumberRaw
	}

	assert.Equal(t, int64(1), next("--doc-type", "engagement"))
	assert.Equal(t, int64(2), next("--doc-type", "engagement"))
	assert.Equal(t, int64(1), next("--doc-type", "liquidation"))
	assert.Equal(t, int64(1), next("--dossier", "--direction", "DAAF"))

	_, err := run(t, "sequence", "next", "--doc-type", "engagement", "--dossier")
	require.Error(t, err)
	_, err = run(t, "sequence", "next", "--doc-type", "facture")
	require.Error(t, err)
}

func TestHistoryAndTimeline(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "history", "no-such-document")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out.String())

	_, err = run(t, "timeline", "ARTI/2025/DAAF/9999")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
