// Package matrix is the client for the Matrix course platform. It performs
// the authenticated requests and normalizes whatever shape the API answers
// with into site types.
package matrix

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/kvo/std/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/RunningKuma/matrix-on-vscode/codec"
	"github.com/RunningKuma/matrix-on-vscode/jsonv"
	"github.com/RunningKuma/matrix-on-vscode/site"
)

// DefaultBaseURL is the production Matrix deployment.
const DefaultBaseURL = "https://matrix.sysu.edu.cn"

// Sessions supplies the session cookie replayed on every request.
type Sessions interface {
	Cookie(ctx context.Context) (string, error)
}

// Client talks to one Matrix deployment.
type Client struct {
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	sessions Sessions
	codec    *codec.Codec
	limiter  *rate.Limiter
	metrics  *Metrics
	log      zerolog.Logger

	Normalizer
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another deployment.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default *http.Client. h itself is never
// modified.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every request, including reading the body. It applies
// to whichever *http.Client the client ends up with.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCodec sets the envelope codec.
func WithCodec(cd *codec.Codec) Option {
	return func(c *Client) { c.codec = cd }
}

// WithRateLimit limits outgoing requests to rps per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records request metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l.With().Str("component", "matrix").Logger() }
}

// WithClock sets the time source used by the deadline rules.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.Now = now }
}

// WithLocation sets the zone used for dates without an explicit offset.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.Location = loc }
}

// NewClient returns a Client reading its cookie from sessions.
func NewClient(sessions Sessions, opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		sessions: sessions,
		codec:    codec.Default(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

// BaseURL returns the deployment the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// cookie returns the session cookie or a NotSignedIn error carrying msg.
func (c *Client) cookie(ctx context.Context, msg string) (string, error) {
	if c.sessions == nil {
		return "", site.NotSignedIn{Message: msg}
	}
	cookie, err := c.sessions.Cookie(ctx)
	if err != nil {
		return "", errors.New("cannot read session", errors.New(err.Error(), nil))
	}
	if cookie == "" {
		return "", site.NotSignedIn{Message: msg}
	}
	return cookie, nil
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// do executes one request and reads the whole body. Non-2xx statuses become
// *site.HTTPError.
func (c *Client) do(ctx context.Context, endpoint, method, path, cookie string, body io.Reader) (response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, errors.New("rate limiter", errors.New(err.Error(), nil))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		err := errors.New(err.Error(), nil)
		return response{}, errors.New("cannot create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(endpoint, "error", time.Since(start))
		err := errors.New(err.Error(), nil)
		return response{}, errors.New("cannot execute request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.metrics.observe(endpoint, fmt.Sprint(resp.StatusCode), time.Since(start))
	if err != nil {
		err := errors.New(err.Error(), nil)
		return response{}, errors.New("cannot read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := site.NewHTTPError(resp.StatusCode, string(raw))
		c.log.Error().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg(herr.Message)
		return response{}, herr
	}
	return response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

// get performs an authenticated GET and decodes the payload.
func (c *Client) get(ctx context.Context, endpoint, path, cookie string) (jsonv.Value, error) {
	resp, err := c.do(ctx, endpoint, http.MethodGet, path, cookie, nil)
	if err != nil {
		return jsonv.Value{}, err
	}
	return c.decodePayload(endpoint, resp.body), nil
}

// FetchCourses retrieves and normalizes the course list.
func (c *Client) FetchCourses(ctx context.Context) ([]site.Course, error) {
	cookie, err := c.cookie(ctx, "当前未登录 Matrix")
	if err != nil {
		return nil, err
	}

	c.log.Info().Msg("fetching courses")
	payload, err := c.get(ctx, "courses", "/api/courses", cookie)
	if err != nil {
		return nil, err
	}

	courses := c.NormalizeCourses(payload)
	c.log.Info().Int("count", len(courses)).Msg("parsed courses")
	return courses, nil
}

// FetchAssignments retrieves and normalizes the assignments of a course.
func (c *Client) FetchAssignments(ctx context.Context, courseID int) ([]site.Assignment, error) {
	cookie, err := c.cookie(ctx, "当前未登录 Matrix，无法获取题目列表")
	if err != nil {
		return nil, err
	}

	c.log.Info().Int("course", courseID).Msg("fetching assignments")
	path := fmt.Sprintf("/api/courses/%d/assignments", courseID)
	payload, err := c.get(ctx, "assignments", path, cookie)
	if err != nil {
		return nil, err
	}

	assignments := c.NormalizeAssignments(payload, courseID)
	c.log.Info().Int("course", courseID).Int("count", len(assignments)).Msg("parsed assignments")
	return assignments, nil
}

// FetchAssignmentDetail retrieves and normalizes a single assignment.
func (c *Client) FetchAssignmentDetail(ctx context.Context, courseID, assignmentID int) (site.AssignmentDetail, error) {
	cookie, err := c.cookie(ctx, "当前未登录 Matrix，无法获取题目详情")
	if err != nil {
		return site.AssignmentDetail{}, err
	}

	c.log.Info().Int("course", courseID).Int("assignment", assignmentID).Msg("fetching assignment detail")
	path := fmt.Sprintf("/api/courses/%d/assignments/%d", courseID, assignmentID)
	payload, err := c.get(ctx, "assignment", path, cookie)
	if err != nil {
		return site.AssignmentDetail{}, err
	}

	detail := c.NormalizeAssignmentDetail(payload, courseID, assignmentID)
	c.log.Info().Int("course", courseID).Int("assignment", detail.ID).Msg("parsed assignment detail")
	return detail, nil
}
