// Package releaseindex resolves "latest applicable release" against a
// GitHub-shaped release index, honoring conditional-request validators
// and a prerelease policy, and selects assets from the result by name
// pattern.
//
// Grounded on the GitHub release-polling client in the teacher's
// internal/updater/updater.go (Check): the request construction
// (bearer auth, custom Accept header, User-Agent, context timeout) and
// the githubRelease decode shape are reused; generalized here from an
// unconditional single "latest" GET into a conditional client that
// also supports prerelease listing and asset URL selection.
package releaseindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

const defaultHost = "https://api.github.com"

// Repo addresses a GitHub repository by owner/name. It is opaque to
// everything except the index client.
type Repo struct {
	Owner string
	Name  string
}

// Asset describes one downloadable file attached to a release.
type Asset struct {
	Name        string
	DownloadURL string
	SizeHint    int64
}

// Release is a transient descriptor for one query result.
type Release struct {
	Tag          string
	IsPrerelease bool
	PublishedAt  time.Time
	Assets       []Asset
}

// Validators are the opaque HTTP conditional-request tokens persisted
// across invocations.
type Validators struct {
	ETag         string
	LastModified string
}

// Outcome is the result of a FetchLatest call: exactly one of
// NotModified or Release is meaningful.
type Outcome struct {
	NotModified bool
	Release     *Release
	Validators  Validators
}

// Client queries a GitHub-compatible releases API.
type Client struct {
	HTTP  *http.Client
	Host  string
	Token string
}

// New returns a Client with sane defaults: its own http.Client with a
// 30-second timeout and the public GitHub API host.
func New(token string) *Client {
	return &Client{HTTP: &http.Client{Timeout: 30 * time.Second}, Host: defaultHost, Token: token}
}

type ghAsset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type ghRelease struct {
	TagName     string    `json:"tag_name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []ghAsset `json:"assets"`
}

// FetchLatest resolves the latest applicable release for repo. When
// allowPrerelease is false it queries the "latest stable release"
// endpoint directly; when true it lists recent releases and returns
// the one with the greatest published_at, ties broken by list order.
// A 304 response yields Outcome.NotModified with the input validators
// preserved unchanged.
func (c *Client) FetchLatest(ctx context.Context, repo Repo, allowPrerelease bool, in Validators) (*Outcome, error) {
	host := c.Host
	if host == "" {
		host = defaultHost
	}

	var url string
	if allowPrerelease {
		url = fmt.Sprintf("%s/repos/%s/%s/releases", host, repo.Owner, repo.Name)
	} else {
		url = fmt.Sprintf("%s/repos/%s/%s/releases/latest", host, repo.Owner, repo.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, "build request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "distronomicon-release-index")
	if in.ETag != "" {
		req.Header.Set("If-None-Match", in.ETag)
	}
	if in.LastModified != "" {
		req.Header.Set("If-Modified-Since", in.LastModified)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, "fetch release index", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return &Outcome{NotModified: true, Validators: in}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		if isRateLimited(resp) {
			return nil, errkind.New(errkind.RateLimit, resp.Header.Get("X-RateLimit-Reset"))
		}
		return nil, errkind.New(errkind.Auth, fmt.Sprintf("status %d", resp.StatusCode))
	case http.StatusNotFound:
		return nil, errkind.New(errkind.NotFound, fmt.Sprintf("%s/%s", repo.Owner, repo.Name))
	case http.StatusTooManyRequests:
		return nil, errkind.New(errkind.RateLimit, resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errkind.New(errkind.MalformedResp, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, "read response body", err)
	}

	out := Validators{ETag: resp.Header.Get("ETag"), LastModified: resp.Header.Get("Last-Modified")}

	release, err := decodeRelease(body, allowPrerelease)
	if err != nil {
		return nil, err
	}

	return &Outcome{Release: release, Validators: out}, nil
}

func decodeRelease(body []byte, isList bool) (*Release, error) {
	if !isList {
		var r ghRelease
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, errkind.Wrap(errkind.MalformedResp, "decode release", err)
		}
		return toRelease(r), nil
	}

	var list []ghRelease
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, errkind.Wrap(errkind.MalformedResp, "decode release list", err)
	}
	if len(list) == 0 {
		return nil, errkind.New(errkind.NotFound, "release list is empty")
	}

	best := 0
	for i := 1; i < len(list); i++ {
		if list[i].PublishedAt.After(list[best].PublishedAt) {
			best = i
		}
	}
	return toRelease(list[best]), nil
}

func toRelease(r ghRelease) *Release {
	assets := make([]Asset, 0, len(r.Assets))
	for _, a := range r.Assets {
		assets = append(assets, Asset{Name: a.Name, DownloadURL: a.URL, SizeHint: a.Size})
	}
	return &Release{Tag: r.TagName, IsPrerelease: r.Prerelease, PublishedAt: r.PublishedAt, Assets: assets}
}

func isRateLimited(resp *http.Response) bool {
	return resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// SelectAsset returns the first asset (in release order) whose name
// matches pattern.
func SelectAsset(release *Release, pattern *regexp.Regexp) (*Asset, error) {
	for i := range release.Assets {
		if pattern.MatchString(release.Assets[i].Name) {
			return &release.Assets[i], nil
		}
	}
	return nil, errkind.New(errkind.NoMatchingAsset, pattern.String())
}

// SelectChecksumAsset returns the first asset matching pattern, or
// false if none matches — the checksum manifest is optional.
func SelectChecksumAsset(release *Release, pattern *regexp.Regexp) (*Asset, bool) {
	asset, err := SelectAsset(release, pattern)
	if err != nil {
		return nil, false
	}
	return asset, true
}

