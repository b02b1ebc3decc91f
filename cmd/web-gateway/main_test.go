package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourdeals/deals-web/config"
)

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Empty(t, opts.envFile)
		assert.Empty(t, opts.addr)
	})

	t.Run("env file and addr", func(t *testing.T) {
		opts, err := parseFlags([]string{"--env-file", "prod.env", "--addr=127.0.0.1:9000"})
		require.NoError(t, err)
		assert.Equal(t, "prod.env", opts.envFile)
		assert.Equal(t, "127.0.0.1:9000", opts.addr)
	})

	t.Run("help", func(t *testing.T) {
		_, err := parseFlags([]string{"--help"})
		assert.ErrorIs(t, err, pflag.ErrHelp)
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := parseFlags([]string{"--database-url", "x"})
		assert.Error(t, err)
	})

	t.Run("positional arguments", func(t *testing.T) {
		_, err := parseFlags([]string{"serve"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected arguments")
	})
}

func TestLoadConfig_EnvFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(context.Background(), options{envFile: filepath.Join(t.TempDir(), "missing.env")})
		assert.Error(t, err)
	})

	t.Run("values from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("SUPPORTED_LOCALES=en,jp,fr\n"), 0o600))
		t.Setenv("SUPPORTED_LOCALES", "")
		// godotenv does not override variables that are already set
		require.NoError(t, os.Unsetenv("SUPPORTED_LOCALES"))

		cfg, err := loadConfig(context.Background(), options{envFile: path})
		require.NoError(t, err)
		assert.Equal(t, []string{"en", "jp", "fr"}, cfg.Locales.Supported)
	})
}

func TestNewServer(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 20 * time.Second,
		},
	}

	srv := newServer(cfg, "", http.NotFoundHandler())
	assert.Equal(t, "0.0.0.0:3000", srv.Addr)
	assert.Equal(t, 10*time.Second, srv.ReadTimeout)
	assert.Equal(t, 20*time.Second, srv.WriteTimeout)
	assert.NotZero(t, srv.ReadHeaderTimeout)

	srv = newServer(cfg, "127.0.0.1:9999", http.NotFoundHandler())
	assert.Equal(t, "127.0.0.1:9999", srv.Addr)
}

func TestRunHealthcheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/healthz", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		assert.NoError(t, runHealthcheck(portOf(t, ts)))
	})

	t.Run("unhealthy", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		err := runHealthcheck(portOf(t, ts))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("API_URL", "http://127.0.0.1:1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, options{addr: "127.0.0.1:0"})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func portOf(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	_, port, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	return port
}
