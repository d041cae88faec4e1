package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_LoadsExistingFilesOnly(t *testing.T) {
	tmp := t.TempDir()
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "PROJTRACK_TEST_ENV_LOAD=ok\n")
	chdir(t, tmp)

	_ = os.Unsetenv("PROJTRACK_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("PROJTRACK_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("PROJTRACK_TEST_ENV_LOAD"))
}

func TestLoadEnv_NoFiles(t *testing.T) {
	chdir(t, t.TempDir())

	n, err := LoadEnv([]string{".env"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNew_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PROJTRACK_QUIET_ENV", "1")
	for _, k := range []string{"DATABASE_URL", "LOCAL_DB_PATH", "IMPORT_BATCH_SIZE", "REPLICATION_RATE", "RECONCILE_TOLERANCE", "LOG_LEVEL", "REPLICATION_TABLES"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	c, err := New(nil)
	require.NoError(t, err)
	require.True(t, c.Database.IsLocal())
	require.Equal(t, "./data/projects.db", c.Database.LocalPath)
	require.Equal(t, 500, c.Import.BatchSize)
	require.Equal(t, "ovp_number", c.Import.BusinessKey)
	require.Equal(t, "50-S", c.Replication.Rate)
	require.Equal(t, 3, c.Replication.MaxAttempts)
	require.Equal(t, 10*time.Second, c.Replication.MaxBackoff)
	require.Equal(t, []string{"users", "clients", "suppliers", "projects", "attachments"}, c.Replication.TableOrder())
	require.InDelta(t, 0.01, c.Reconcile.Tolerance, 1e-9)
	require.Equal(t, logrus.InfoLevel, c.LogrusLogLevel())
	require.NotNil(t, c.Logger())
}

func TestNew_RejectsInvalidValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PROJTRACK_QUIET_ENV", "1")

	cases := map[string]map[string]string{
		"batch size": {"IMPORT_BATCH_SIZE": "0"},
		"tolerance":  {"RECONCILE_TOLERANCE": "-1"},
		"rate":       {"REPLICATION_RATE": "fast"},
		"log level":  {"LOG_LEVEL": "chatty"},
		"log format": {"LOG_FORMAT": "xml"},
		"attempts":   {"REPLICATION_MAX_ATTEMPTS": "0"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := New(nil)
			require.Error(t, err)
		})
	}
}

func TestReplicationOptions_TableOrder(t *testing.T) {
	r := ReplicationOptions{Tables: " users, ,projects\nattachments "}
	require.Equal(t, []string{"users", "projects", "attachments"}, r.TableOrder())
}

func TestLogrusLogLevel(t *testing.T) {
	for level, want := range map[string]logrus.Level{
		"silent": logrus.PanicLevel,
		"error":  logrus.ErrorLevel,
		"warn":   logrus.WarnLevel,
		"debug":  logrus.DebugLevel,
		"":       logrus.InfoLevel,
	} {
		c := &Configuration{LogLevel: level}
		require.Equal(t, want, c.LogrusLogLevel(), level)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(dir))
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
