package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oshokin/sing-box-manager/internal/logger"
	"github.com/oshokin/sing-box-manager/internal/platform"
)

// DefaultAPIBase is the GitHub API root used unless overridden.
const DefaultAPIBase = "https://api.github.com"

// assetSuffix is the archive type published for Linux assets.
const assetSuffix = ".tar.gz"

// osToken identifies Linux assets within a release.
const osToken = "linux"

// ErrResolution is wrapped by every failure to resolve release metadata.
var ErrResolution = errors.New("release resolution failed")

// Release is the resolved upstream release for the host architecture.
type Release struct {
	// Version is the release tag with a leading "v" stripped.
	Version string
	// AssetName is the name of the matched archive asset.
	AssetName string
	// DownloadURL is the direct download URL of the matched asset.
	DownloadURL string
}

// latestRelease mirrors the fields of the GitHub latest-release response
// the resolver needs.
type latestRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// Resolver queries a GitHub repository for its latest release.
type Resolver struct {
	// repo is the "owner/name" repository to query.
	repo string
	// apiBase is the API root, overridable for tests.
	apiBase string
	// client performs the HTTP requests.
	client *http.Client
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithAPIBase overrides the GitHub API root.
func WithAPIBase(base string) Option {
	return func(r *Resolver) {
		r.apiBase = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// NewResolver creates a resolver for the given "owner/name" repository.
func NewResolver(repo string, opts ...Option) *Resolver {
	r := &Resolver{
		repo:    repo,
		apiBase: DefaultAPIBase,
		client:  http.DefaultClient,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Latest resolves the most recent release and picks the asset for arch.
// No retries: a single failed attempt is reported as is.
func (r *Resolver) Latest(ctx context.Context, arch platform.Arch) (*Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases/latest", r.apiBase, r.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	response, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		if response.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %s: rate limited or forbidden", ErrResolution, endpoint)
		}

		return nil, fmt.Errorf("%w: %s: %s", ErrResolution, endpoint, response.Status)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrResolution, err)
	}

	var latest latestRelease
	if err = json.Unmarshal(data, &latest); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrResolution, err)
	}

	if latest.TagName == "" {
		return nil, fmt.Errorf("%w: empty release tag from %s", ErrResolution, endpoint)
	}

	result, err := matchAsset(&latest, arch)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Resolved latest release",
		"repo", r.repo, "version", result.Version, "asset", result.AssetName)

	return result, nil
}

// matchAsset selects the Linux archive asset containing the architecture token.
func matchAsset(latest *latestRelease, arch platform.Arch) (*Release, error) {
	token := arch.Token()

	for _, asset := range latest.Assets {
		name := strings.ToLower(asset.Name)
		if !strings.HasSuffix(name, assetSuffix) {
			continue
		}

		if !strings.Contains(name, osToken) || !strings.Contains(name, token) {
			continue
		}

		return &Release{
			Version:     strings.TrimPrefix(latest.TagName, "v"),
			AssetName:   asset.Name,
			DownloadURL: asset.BrowserDownloadURL,
		}, nil
	}

	return nil, fmt.Errorf("%w: no %s/%s asset in release %s",
		ErrResolution, osToken, token, latest.TagName)
}
