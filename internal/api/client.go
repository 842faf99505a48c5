package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3/client"

	"folio/internal/services"
)

// Client talks to a running daemon's API.
type Client struct {
	baseURL string
	http    *client.Client
}

// Error is a non-2xx API reply.
type Error struct {
	Status  int
	Message string
	Kind    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return e.Message
}

// Unwrap restores the error classification carried in the reply.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case "compilation":
		return services.ErrCompilation
	case "validation":
		return services.ErrValidation
	case "not_found":
		return services.ErrNotFound
	case "unavailable":
		return services.ErrUnavailable
	case "task":
		return services.ErrTask
	default:
		return nil
	}
}

// NewClient returns a client for the daemon bound at bind (host:port or URL).
func NewClient(bind string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	cc := client.New()
	cc.SetTimeout(30 * time.Second)
	return &Client{baseURL: base, http: cc}
}

// Submit posts a request body for jobType on behalf of user.
func (c *Client) Submit(ctx context.Context, jobType, user string, body []byte) (*SubmitResponse, error) {
	resp, err := c.http.Post(c.baseURL+"/api/jobs/"+url.PathEscape(jobType), client.Config{
		Ctx: ctx,
		Header: map[string]string{
			UserHeader: user,
		},
		Body: json.RawMessage(body),
	})
	if err != nil {
		return nil, c.unavailable(err)
	}
	var out SubmitResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the user's batches, or every node when all is set.
func (c *Client) List(ctx context.Context, user string, all bool) ([]JobNode, error) {
	query := url.Values{"user": {user}}
	if all {
		query.Set("all", "true")
	}
	resp, err := c.http.Get(c.baseURL+"/api/jobs?"+query.Encode(), client.Config{Ctx: ctx})
	if err != nil {
		return nil, c.unavailable(err)
	}
	var out JobListResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Show returns a node with its children.
func (c *Client) Show(ctx context.Context, id string) (*JobDetailResponse, error) {
	resp, err := c.http.Get(c.baseURL+"/api/jobs/"+url.PathEscape(id), client.Config{Ctx: ctx})
	if err != nil {
		return nil, c.unavailable(err)
	}
	var out JobDetailResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobTypes lists the recipes the daemon accepts.
func (c *Client) JobTypes(ctx context.Context) ([]JobType, error) {
	resp, err := c.http.Get(c.baseURL+"/api/job-types", client.Config{Ctx: ctx})
	if err != nil {
		return nil, c.unavailable(err)
	}
	var out JobTypesResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Types, nil
}

// Health returns the daemon's readiness report. An unhealthy daemon still
// yields a report.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.http.Get(c.baseURL+"/api/health", client.Config{Ctx: ctx})
	if err != nil {
		return nil, c.unavailable(err)
	}
	defer resp.Close()
	var out HealthResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &out, nil
}

func (c *Client) unavailable(err error) error {
	return services.Wrap(services.ErrUnavailable, "api", "request", "daemon unreachable at "+c.baseURL, err)
}

func decode(resp *client.Response, out any) error {
	defer resp.Close()
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		var body ErrorResponse
		_ = json.Unmarshal(resp.Body(), &body)
		return &Error{Status: status, Message: body.Error, Kind: body.Kind}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
