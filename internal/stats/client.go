// Package stats implements the Call of Duty statistics API client. Login is
// session-based: a CSRF token scraped from the login page, a credentialed
// form post, and a named authentication cookie that must be present
// afterwards.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"

	"github.com/dvidales/codbot/internal/logger"
	"github.com/dvidales/codbot/pkg/constants"
)

const (
	defaultProfileBase = "https://profile.callofduty.com"
	defaultAPIBase     = "https://my.callofduty.com"

	// authCookieName is the cookie whose presence after login marks an
	// authenticated session.
	authCookieName = "atkn"
)

// ErrLoginFailed marks a login attempt that did not yield the expected
// authentication cookie. It is fatal for the session being constructed.
var ErrLoginFailed = errors.New("stats: login failed")

var csrfPattern = regexp.MustCompile(`name="_csrf" content="(.*?)"`)

// PlayerProfile is the subset of the profile payload the bot reports.
type PlayerProfile struct {
	Data ProfileData `json:"data"`
}

// ProfileData carries the per-player profile fields.
type ProfileData struct {
	Level int `json:"level"`
}

// ActivityEvent is one friend-feed event. Date is epoch millis.
type ActivityEvent struct {
	Username string `json:"username"`
	Category string `json:"category"`
	Date     int64  `json:"date"`
}

// Match is one entry of the match history feed.
type Match struct {
	MatchID         string      `json:"matchID"`
	UTCStartSeconds int64       `json:"utcStartSeconds"`
	PlayerStats     PlayerStats `json:"playerStats"`
}

// PlayerStats carries the per-match player figures the bot reports.
type PlayerStats struct {
	Kills  float64 `json:"kills"`
	Deaths float64 `json:"deaths"`
}

// Client is a session-authenticated stats API client. It is not safe for
// concurrent use; the bot drives it from the single polling loop.
type Client struct {
	httpClient  *http.Client
	user        string
	password    string
	profileBase string
	apiBase     string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the login and API base URLs, used by tests.
func WithBaseURLs(profileBase, apiBase string) Option {
	return func(c *Client) {
		c.profileBase = strings.TrimSuffix(profileBase, "/")
		c.apiBase = strings.TrimSuffix(apiBase, "/")
	}
}

// WithHTTPClient overrides the HTTP client. A cookie jar is still attached
// when the given client has none, since login depends on it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an unauthenticated client for the given credentials.
// Call Login before any data method.
func NewClient(user, password string, opts ...Option) (*Client, error) {
	c := &Client{
		user:        user,
		password:    password,
		profileBase: defaultProfileBase,
		apiBase:     defaultAPIBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("stats: create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	return c, nil
}

// Login fetches the CSRF token from the login page, posts the credential
// form, and verifies the authentication cookie was set.
func (c *Client) Login(ctx context.Context) error {
	token, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"username":    {c.user},
		"password":    {c.password},
		"remember_me": {"true"},
		"_csrf":       {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.profileBase+"/do_login?new_SiteId=cod", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("stats: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stats: login request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK || !c.hasAuthCookie() {
		return fmt.Errorf("%w: %s cookie not present after login", ErrLoginFailed, authCookieName)
	}

	logger.WithField("user", c.user).Info("stats-login-succeeded")
	return nil
}

// fetchCSRFToken scrapes the CSRF token from the login page form.
func (c *Client) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileBase+"/cod/login", nil)
	if err != nil {
		return "", fmt.Errorf("stats: build login page request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stats: fetch login page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stats: login page returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("stats: read login page: %w", err)
	}

	match := csrfPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("stats: csrf token not found in login page")
	}
	return string(match[1]), nil
}

// hasAuthCookie reports whether the jar holds the authentication cookie for
// the profile host.
func (c *Client) hasAuthCookie() bool {
	base, err := url.Parse(c.profileBase)
	if err != nil {
		return false
	}
	for _, cookie := range c.httpClient.Jar.Cookies(base) {
		if cookie.Name == authCookieName {
			return true
		}
	}
	return false
}

// PlayerInfo fetches the multiplayer profile for a player on a platform.
func (c *Client) PlayerInfo(ctx context.Context, player, platform string) (*PlayerProfile, error) {
	endpoint := fmt.Sprintf("%s/api/papi-client/stats/cod/v1/title/mw/platform/%s/gamer/%s/profile/type/mp",
		c.apiBase, url.PathEscape(platform), url.PathEscape(player))

	var profile PlayerProfile
	if err := c.getJSON(ctx, endpoint, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ActivityFeed fetches the friend feed and filters it client-side to events
// newer than sinceEpoch (millis).
func (c *Client) ActivityFeed(ctx context.Context, sinceEpoch int64) ([]ActivityEvent, error) {
	endpoint := c.apiBase + "/api/papi-client/userfeed/v1/friendFeed/"

	var payload struct {
		Data struct {
			Events []ActivityEvent `json:"events"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	var fresh []ActivityEvent
	for _, ev := range payload.Data.Events {
		if ev.Date > sinceEpoch {
			fresh = append(fresh, ev)
		}
	}
	return fresh, nil
}

// ScoresFeed fetches match details for a player from sinceEpoch (seconds)
// onwards. The upstream matches array may be null; that maps to an empty
// slice, not an error.
func (c *Client) ScoresFeed(ctx context.Context, sinceEpoch int64, player, platform string) ([]Match, error) {
	endpoint := fmt.Sprintf("%s/api/papi-client/crm/cod/v2/title/mw/platform/%s/gamer/%s/matches/wz/start/%d/end/0/details",
		c.apiBase, url.PathEscape(platform), url.PathEscape(player), sinceEpoch)

	var payload struct {
		Data struct {
			Matches []Match `json:"matches"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Data.Matches, nil
}

// getJSON performs a GET and decodes the JSON response body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("stats: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stats: request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("stats: api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("stats: decode response: %w", err)
	}
	return nil
}
