package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/logger"
	"clubsync/pkg/model"
)

// DirectoryClient talks to the member directory service. Lookups are
// read-only, so failures are retried with bounded backoff and full-roster
// responses are cached for a short TTL. The cache policy lives here, not in
// the matcher.
type DirectoryClient struct {
	http         *HttpClient
	log          *logger.Logger
	cacheTTL     time.Duration
	retryMax     int
	retryBackoff time.Duration

	mu        sync.RWMutex
	roster    []model.Member
	rosterAt  time.Time
	rosterKey string
}

func NewDirectoryClient(log *logger.Logger, baseURL string, cacheTTL time.Duration, retryMax int, retryBackoff time.Duration) *DirectoryClient {
	return &DirectoryClient{
		http:         NewHttpClient(baseURL),
		log:          log,
		cacheTTL:     cacheTTL,
		retryMax:     retryMax,
		retryBackoff: retryBackoff,
	}
}

// SearchMembers queries the directory. An empty query returns the full
// roster. includeFormer extends results to members whose membership lapsed.
func (c *DirectoryClient) SearchMembers(ctx context.Context, query string, includeFormer bool) ([]model.Member, error) {
	cacheKey := query
	if includeFormer {
		cacheKey += "|former"
	}

	c.mu.RLock()
	if c.rosterKey == cacheKey && time.Since(c.rosterAt) < c.cacheTTL {
		cached := c.roster
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	if includeFormer {
		q.Set("include_former", "true")
	}
	path := "/api/v1/members"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, apperrors.Unavailable("member directory")
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("Directory search returned non-OK status",
			"status", resp.StatusCode,
			"query", query,
		)
		return nil, apperrors.Unavailable("member directory")
	}

	var wrapper struct {
		Data []model.Member `json:"data"`
	}
	if err := resp.DecodeJSON(&wrapper); err != nil {
		return nil, apperrors.Internal("Failed to decode directory response", err)
	}

	c.mu.Lock()
	c.roster = wrapper.Data
	c.rosterAt = time.Now()
	c.rosterKey = cacheKey
	c.mu.Unlock()

	return wrapper.Data, nil
}

func (c *DirectoryClient) GetMemberDetails(ctx context.Context, email string) (*model.MemberDetails, error) {
	path := "/api/v1/members/" + url.PathEscape(email)

	resp, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, apperrors.Unavailable("member directory")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFoundWithID("Member", email)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Unavailable("member directory")
	}

	var wrapper struct {
		Data model.MemberDetails `json:"data"`
	}
	if err := resp.DecodeJSON(&wrapper); err != nil {
		return nil, apperrors.Internal("Failed to decode member details", err)
	}

	return &wrapper.Data, nil
}

// getWithRetry retries transient failures with linear backoff. Retries are
// safe here because every directory call is a read.
func (c *DirectoryClient) getWithRetry(ctx context.Context, path string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryBackoff):
			}
		}

		resp, err := c.http.GET(ctx, path)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("directory returned status %d", resp.StatusCode)
		}

		c.log.Warn("Directory request failed, will retry",
			"path", path,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	return nil, lastErr
}
