// Package update checks GitHub releases for a newer build and replaces the
// running binary with it.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/selfupdate"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.github.com"
	UserAgent      = "icinga-passive-checks-update-checker"

	defaultTimeout = 60 * time.Second
)

// ErrAssetNotFound is returned when the latest release carries no asset with
// the configured name
var ErrAssetNotFound = errors.New("asset not found")

type Options struct {
	BaseURL        string // defaults to DefaultBaseURL
	Repository     string // owner/name
	Asset          string
	CurrentVersion string
	TargetPath     string // defaults to the running executable
	Timeout        time.Duration
}

type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Version returns the release tag without its leading "v"
func (r *Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}

type Updater struct {
	opts   Options
	client *http.Client
	logger *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Updater {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &Updater{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
}

// Latest fetches the latest published release
func (u *Updater) Latest(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(u.opts.BaseURL, "/"), u.opts.Repository)

	resp, err := u.get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}
	return &release, nil
}

// Check compares the latest release with the running version and returns a
// human-readable verdict
func (u *Updater) Check(ctx context.Context) (string, error) {
	release, err := u.Latest(ctx)
	if err != nil {
		return "", err
	}

	current := strings.TrimPrefix(u.opts.CurrentVersion, "v")
	if release.Version() == current {
		return "Up to date", nil
	}
	return fmt.Sprintf("Update available: v%s -> v%s", current, release.Version()), nil
}

// Update downloads the configured asset of the latest release and swaps it
// in place of the target binary. Nothing is downloaded when the running
// version is already the latest.
func (u *Updater) Update(ctx context.Context) (string, error) {
	release, err := u.Latest(ctx)
	if err != nil {
		return "", err
	}

	current := strings.TrimPrefix(u.opts.CurrentVersion, "v")
	if release.Version() == current {
		return "Up to date", nil
	}

	var asset *Asset
	for i := range release.Assets {
		if release.Assets[i].Name == u.opts.Asset {
			asset = &release.Assets[i]
			break
		}
	}
	if asset == nil {
		return "", fmt.Errorf("release %s: %w: %s", release.TagName, ErrAssetNotFound, u.opts.Asset)
	}

	u.logger.Info("Downloading update",
		zap.String("version", release.TagName),
		zap.String("asset", asset.Name),
		zap.String("url", asset.BrowserDownloadURL),
	)

	resp, err := u.get(ctx, asset.BrowserDownloadURL, "application/octet-stream")
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()

	if err := selfupdate.Apply(resp.Body, selfupdate.Options{TargetPath: u.opts.TargetPath}); err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			u.logger.Error("Failed to roll back update", zap.Error(rerr))
		}
		return "", fmt.Errorf("failed to apply update: %w", err)
	}

	u.logger.Info("Update applied", zap.String("version", release.TagName))
	return fmt.Sprintf("Updated v%s -> v%s", current, release.Version()), nil
}

func (u *Updater) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
