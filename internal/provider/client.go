package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gitvault/internal/apperr"
	"gitvault/internal/config"

	gh "github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

// Every provider call runs under a fixed deadline. A call that exceeds
// it is treated as a failure; there is no mid-call cancellation beyond this.
const callTimeout = 30 * time.Second

// Repository identifies a remote repository used as a storage bucket.
type Repository struct {
	ID   int64
	Name string
}

// Release is the container a single upload is attached to.
type Release struct {
	ID  int64
	Tag string
}

// Asset describes one stored object on the provider side.
type Asset struct {
	ID          int64
	Name        string
	DownloadURL string
	SizeBytes   int64
}

// Usage is the provider-reported aggregate for one repository.
type Usage struct {
	AssetCount int
	TotalBytes int64
}

// Client wraps the GitHub API as the storage capability: create
// repositories, attach releases, and manage release assets.
type Client struct {
	gh             *gh.Client
	owner          string
	retryAttempts  int
	retryBaseDelay time.Duration
	log            *slog.Logger
}

// New builds a provider client authenticated with a static token.
// APIBaseURL overrides the GitHub endpoint (used against test servers).
func New(cfg config.GitHubConfig, log *slog.Logger) (*Client, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("github owner is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	client := gh.NewClient(httpClient)

	if cfg.APIBaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.APIBaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github api base url: %w", err)
		}
		client.BaseURL = base
		client.UploadURL = base
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		gh:             client,
		owner:          cfg.Owner,
		retryAttempts:  attempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		log:            log,
	}, nil
}

// Ping verifies the API is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, _, err := c.gh.Zen(ctx); err != nil {
		return classify("provider.Ping", err)
	}
	return nil
}

// RepositoryExists reports whether a repository with the given name
// already exists under the configured owner.
func (c *Client) RepositoryExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	_, resp, err := c.gh.Repositories.Get(ctx, c.owner, name)
	if err == nil {
		return true, nil
	}
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, classify("provider.RepositoryExists", err)
}

// CreateRepository creates a private repository. Transient failures are
// retried with exponential backoff; the caller is expected to have
// pre-checked name availability since the provider rejects duplicates.
func (c *Client) CreateRepository(ctx context.Context, name, description string) (Repository, error) {
	const op = "provider.CreateRepository"

	spec := &gh.Repository{
		Name:        gh.String(name),
		Description: gh.String(description),
		Private:     gh.Bool(true),
	}

	var created *gh.Repository
	delay := c.retryBaseDelay
	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		repo, _, err := c.gh.Repositories.Create(callCtx, "", spec)
		cancel()
		if err == nil {
			created = repo
			break
		}

		classified := classify(op, err)
		if attempt >= c.retryAttempts || !isTransient(classified) {
			return Repository{}, classified
		}

		c.log.Warn("repository creation failed, retrying",
			"repo", name, "attempt", attempt, "delay", delay.String(), "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Repository{}, apperr.Wrap(apperr.KindProvider, op, "create cancelled", ctx.Err())
		}
		delay *= 2
	}

	return Repository{ID: created.GetID(), Name: created.GetName()}, nil
}

// CreateRelease creates a uniquely tagged release to attach one upload to.
func (c *Client) CreateRelease(ctx context.Context, repoName, tag string) (Release, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	release, _, err := c.gh.Repositories.CreateRelease(ctx, c.owner, repoName, &gh.RepositoryRelease{
		TagName: gh.String(tag),
		Name:    gh.String(tag),
	})
	if err != nil {
		return Release{}, classify("provider.CreateRelease", err)
	}
	return Release{ID: release.GetID(), Tag: release.GetTagName()}, nil
}

// UploadAsset stores the content as a release asset. The GitHub upload
// endpoint needs a seekable file with a known size, so the content is
// spooled to a temp file first.
func (c *Client) UploadAsset(ctx context.Context, repoName string, releaseID int64, filename, contentType string, content io.Reader) (Asset, error) {
	const op = "provider.UploadAsset"

	tmp, err := os.CreateTemp("", "gitvault-upload-*")
	if err != nil {
		return Asset{}, apperr.Wrap(apperr.KindInternal, op, "spool upload", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, content); err != nil {
		return Asset{}, apperr.Wrap(apperr.KindInternal, op, "spool upload", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Asset{}, apperr.Wrap(apperr.KindInternal, op, "rewind upload", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	asset, _, err := c.gh.Repositories.UploadReleaseAsset(ctx, c.owner, repoName, releaseID, &gh.UploadOptions{
		Name:      filename,
		MediaType: contentType,
	}, tmp)
	if err != nil {
		return Asset{}, classify(op, err)
	}

	return Asset{
		ID:          asset.GetID(),
		Name:        asset.GetName(),
		DownloadURL: asset.GetBrowserDownloadURL(),
		SizeBytes:   int64(asset.GetSize()),
	}, nil
}

// DeleteAsset removes a release asset. A not-found response counts as
// success so that deletes stay idempotent.
func (c *Client) DeleteAsset(ctx context.Context, repoName string, assetID int64) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.gh.Repositories.DeleteReleaseAsset(ctx, c.owner, repoName, assetID)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return classify("provider.DeleteAsset", err)
	}
	return nil
}

// GetAggregateAssetSize walks all releases of a repository and sums the
// stored asset sizes. This is the ground truth for reconciliation.
func (c *Client) GetAggregateAssetSize(ctx context.Context, repoName string) (Usage, error) {
	const op = "provider.GetAggregateAssetSize"

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var usage Usage
	opts := &gh.ListOptions{PerPage: 100}
	for {
		releases, resp, err := c.gh.Repositories.ListReleases(ctx, c.owner, repoName, opts)
		if err != nil {
			return Usage{}, classify(op, err)
		}
		for _, release := range releases {
			for _, asset := range release.Assets {
				usage.AssetCount++
				usage.TotalBytes += int64(asset.GetSize())
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return usage, nil
}

// classify maps provider responses onto the error taxonomy, keeping the
// originating operation for diagnostics.
func classify(op string, err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return apperr.Wrap(apperr.KindProvider, op, "rate limited", err)
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusUnauthorized:
			return apperr.Wrap(apperr.KindProvider, op, "unauthorized", err)
		case http.StatusForbidden, http.StatusTooManyRequests:
			return apperr.Wrap(apperr.KindProvider, op, "forbidden or rate limited", err)
		case http.StatusNotFound:
			return apperr.Wrap(apperr.KindNotFound, op, "not found on provider", err)
		case http.StatusUnprocessableEntity:
			return apperr.Wrap(apperr.KindValidation, op, "rejected by provider", err)
		}
	}
	return apperr.Wrap(apperr.KindProvider, op, "provider request failed", err)
}

// isTransient reports whether a classified error is worth retrying.
// Auth, validation, and not-found failures are terminal.
func isTransient(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound:
		return false
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		return code >= 500 || code == http.StatusTooManyRequests
	}
	// Network-level failures carry no response and are assumed transient.
	return true
}
