package prober

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"egress-client/pkg/client"
	"egress-client/pkg/config"
)

func TestReadURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := `# probe targets
http://example.com/a

http://example.com/b
  http://example.com/c
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	urls, err := ReadURLFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://example.com/a",
		"http://example.com/b",
		"http://example.com/c",
	}, urls)
}

func TestReadURLFileMissing(t *testing.T) {
	_, err := ReadURLFile(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func TestProbeURLs(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	cfg := &config.AppConfig{MaxRetries: 1, RequestTimeout: 5 * time.Second}
	c := client.New(cfg, nil, nil, nil)
	defer c.Close()

	urls := []string{ts.URL + "/a", ts.URL + "/b", ts.URL + "/c"}
	err := ProbeURLs(context.Background(), nil, c, urls, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), hits.Load())
}

func TestProbeURLsToleratesFailures(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	cfg := &config.AppConfig{MaxRetries: 0, RequestTimeout: time.Second}
	c := client.New(cfg, nil, nil, nil)
	defer c.Close()

	err := ProbeURLs(context.Background(), nil, c, []string{dead.URL}, 1)
	require.NoError(t, err, "a failed probe is logged, not surfaced")
}
