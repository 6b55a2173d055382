package release

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sing-box-manager/internal/platform"
)

// serveLatest returns a test server answering the latest-release endpoint with the given body and status.
func serveLatest(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/example/proxy/releases/latest", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// TestLatestSelectsArchAsset verifies asset selection per architecture token.
func TestLatestSelectsArchAsset(t *testing.T) {
	t.Parallel()

	const body = `{
		"tag_name": "v1.9.3",
		"assets": [
			{"name": "sing-box-1.9.3-linux-amd64.tar.gz", "browser_download_url": "https://dl/amd64"},
			{"name": "sing-box-1.9.3-linux-arm64.tar.gz", "browser_download_url": "https://dl/arm64"},
			{"name": "sing-box-1.9.3-linux-armv7.tar.gz", "browser_download_url": "https://dl/armv7"},
			{"name": "sing-box-1.9.3-darwin-amd64.tar.gz", "browser_download_url": "https://dl/darwin"},
			{"name": "sing-box-1.9.3-linux-amd64.deb", "browser_download_url": "https://dl/deb"}
		]
	}`

	server := serveLatest(t, http.StatusOK, body)
	resolver := NewResolver("example/proxy", WithAPIBase(server.URL), WithHTTPClient(server.Client()))

	cases := map[platform.Arch]string{
		platform.ArchAMD64: "https://dl/amd64",
		platform.ArchARM64: "https://dl/arm64",
		platform.ArchARMv7: "https://dl/armv7",
	}
	for arch, wantURL := range cases {
		resolved, err := resolver.Latest(context.Background(), arch)
		require.NoError(t, err)
		require.Equal(t, "1.9.3", resolved.Version)
		require.Equal(t, wantURL, resolved.DownloadURL)
		require.Contains(t, resolved.AssetName, arch.Token())
	}
}

// TestLatestFailures covers rate limiting, bad payloads and missing assets.
func TestLatestFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusForbidden, `{"message":"API rate limit exceeded"}`},
		{"not found", http.StatusNotFound, `{"message":"Not Found"}`},
		{"unparseable", http.StatusOK, `{invalid json`},
		{"empty tag", http.StatusOK, `{"tag_name":"","assets":[]}`},
		{"no matching asset", http.StatusOK, `{"tag_name":"v1.0.0","assets":[{"name":"proxy-windows-amd64.zip","browser_download_url":"https://dl/win"}]}`},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := serveLatest(t, tc.status, tc.body)
			resolver := NewResolver("example/proxy", WithAPIBase(server.URL), WithHTTPClient(server.Client()))

			_, err := resolver.Latest(context.Background(), platform.ArchAMD64)
			require.ErrorIs(t, err, ErrResolution)
		})
	}
}
