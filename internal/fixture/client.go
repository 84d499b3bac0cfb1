// Package fixture fetches team details from the fixture provider and
// memoizes them.
package fixture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"fixcal/internal/apperr"
	"fixcal/internal/config"
	"fixcal/internal/metrics"
	"fixcal/internal/model"
)

const teamDetailsEndpoint = "GetMobTeamDetails"

// maxBody bounds a provider response.
const maxBody = 8 << 20

// teamResponse is the provider's envelope around team details.
type teamResponse struct {
	Message *string            `json:"Message"`
	Success bool               `json:"Success"`
	Details *model.TeamDetails `json:"MobTeamDetails" validate:"required"`
}

// cacheEntry holds HTTP cache metadata for a single provider URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Client talks to the provider's mobile service. The last good response
// per team is kept on disk and served when the provider is unavailable.
type Client struct {
	baseURL  string
	http     *http.Client
	cacheDir string
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewClient builds a Client from provider config. validate, m and logger
// may be nil.
func NewClient(cfg config.ProviderConfig, validate *validator.Validate, m *metrics.Metrics, logger *zap.Logger) *Client {
	if cfg.CacheDir == "" {
		// Relative so development runs work without root permissions.
		cfg.CacheDir = "./var/fixture-cache"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		http:     &http.Client{Timeout: cfg.Timeout},
		cacheDir: cfg.CacheDir,
		validate: validate,
		metrics:  m,
		logger:   logger,
	}
}

// FetchTeam returns the team's details. Provider failures without a usable
// cached body are reported as apperr.ErrUpstream.
func (c *Client) FetchTeam(ctx context.Context, centreID, teamID string) (model.TeamDetails, error) {
	if centreID == "" || teamID == "" {
		return model.TeamDetails{}, apperr.Clone(apperr.ErrNotFound, "centre and team ids are required")
	}

	started := time.Now()
	details, fromCache, err := c.fetch(ctx, c.teamURL(centreID, teamID))
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case fromCache:
		outcome = "cached"
	}
	c.metrics.FixtureFetch(outcome, time.Since(started))

	if err != nil {
		c.logger.Error("fixture fetch failed", zap.Error(err),
			zap.String("centre_id", centreID), zap.String("team_id", teamID))
		return model.TeamDetails{}, apperr.WrapAs(apperr.ErrUpstream, err, "")
	}
	return details, nil
}

func (c *Client) teamURL(centreID, teamID string) string {
	q := url.Values{}
	q.Set("centreID", centreID)
	q.Set("teamId", teamID)
	return c.baseURL + "/" + teamDetailsEndpoint + "?" + q.Encode()
}

// fetch honours ETag and Last-Modified using a disk cache keyed by a hash
// of the URL.
func (c *Client) fetch(ctx context.Context, rawURL string) (model.TeamDetails, bool, error) {
	cachePath := c.cachePathForURL(rawURL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return model.TeamDetails{}, false, err
	}

	meta, _ := c.loadCacheMeta(cachePath)
	cachedBody, _ := c.loadCacheBody(cachePath)

	fallback := func(reason error) (model.TeamDetails, bool, error) {
		if len(cachedBody) == 0 {
			return model.TeamDetails{}, false, reason
		}
		details, err := c.decode(cachedBody)
		if err != nil {
			return model.TeamDetails{}, false, fmt.Errorf("%w (cached body unusable: %v)", reason, err)
		}
		c.logger.Warn("fixture fetch degraded; using cached body",
			zap.String("reason", reason.Error()), zap.Time("cached_at", meta.UpdatedAt))
		return details, true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return model.TeamDetails{}, false, err
	}
	req.Header.Set("Accept", "application/json")
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	c.logger.Debug("fixture fetch start", zap.String("url", rawURL))

	resp, err := c.http.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return fallback(err)
		}
		details, err := c.decode(body)
		if err != nil {
			return fallback(err)
		}

		newMeta := cacheEntry{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := c.saveCache(cachePath, newMeta, body); err != nil {
			// Still return the freshly fetched body.
			c.logger.Warn("fixture cache save failed", zap.Error(err))
		}
		c.logger.Info("fixture fetch success",
			zap.Int("team_id", details.ID), zap.Int("upcoming", len(details.Upcoming)),
			zap.Int("completed", len(details.Completed)))
		return details, false, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return model.TeamDetails{}, false, errors.New("received 304 Not Modified but no cached body available")
		}
		details, err := c.decode(cachedBody)
		if err != nil {
			return model.TeamDetails{}, false, err
		}
		c.logger.Debug("fixture not modified; using cache", zap.String("url", rawURL))
		return details, true, nil

	default:
		return fallback(fmt.Errorf("provider responded %s", resp.Status))
	}
}

// decode parses and validates a provider body.
func (c *Client) decode(body []byte) (model.TeamDetails, error) {
	var resp teamResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.TeamDetails{}, fmt.Errorf("decode team details: %w", err)
	}
	if !resp.Success {
		msg := "provider reported failure"
		if resp.Message != nil && *resp.Message != "" {
			msg += ": " + *resp.Message
		}
		return model.TeamDetails{}, errors.New(msg)
	}
	if err := c.validate.Struct(resp); err != nil {
		return model.TeamDetails{}, fmt.Errorf("validate team details: %w", err)
	}
	return *resp.Details, nil
}

func (c *Client) cachePathForURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:8]))
}

func (c *Client) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (c *Client) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.json"))
}

func (c *Client) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
