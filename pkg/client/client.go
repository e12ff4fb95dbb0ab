// Package client talks to the task API and keeps the signed-in user's state.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fastygo/taskflow/api/transport"
	"github.com/fastygo/taskflow/domain"
)

// Client is a thin fasthttp wrapper over the HTTP API. Server error envelopes
// are returned as *domain.Error carrying the server's code.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

type Option func(*Client)

// WithDial replaces the network dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) {
		c.http.Dial = dial
	}
}

// WithTimeout bounds calls whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			Name:                "taskflow-client",
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Register(ctx context.Context, email, name, password string) (*domain.UserSummary, error) {
	var user domain.UserSummary
	req := transport.RegisterRequest{Email: email, Name: name, Password: password}
	if err := c.do(ctx, fasthttp.MethodPost, "/user/register", "", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	var session domain.Session
	req := transport.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, fasthttp.MethodPost, "/user/login", "", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Me(ctx context.Context, token string) (*domain.UserSummary, error) {
	var user domain.UserSummary
	if err := c.do(ctx, fasthttp.MethodGet, "/user/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, token string, patch domain.ProfilePatch) (*domain.UserSummary, error) {
	var user domain.UserSummary
	req := transport.ProfileUpdateRequest{Name: patch.Name, Avatar: patch.Avatar}
	if err := c.do(ctx, fasthttp.MethodPut, "/user/profile", token, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListTasks(ctx context.Context, token string) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0)
	if err := c.do(ctx, fasthttp.MethodGet, "/tasks", token, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask sends the set fields of fields as a new task.
func (c *Client) CreateTask(ctx context.Context, token string, fields domain.TaskPatch) (*domain.Task, error) {
	var task domain.Task
	if err := c.do(ctx, fasthttp.MethodPost, "/tasks", token, patchBody(fields), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) UpdateTask(ctx context.Context, token, id string, patch domain.TaskPatch) (*domain.Task, error) {
	var task domain.Task
	if err := c.do(ctx, fasthttp.MethodPut, "/tasks/"+id, token, patchBody(patch), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) ToggleTask(ctx context.Context, token, id string) (*domain.Task, error) {
	var task domain.Task
	if err := c.do(ctx, fasthttp.MethodPatch, "/tasks/"+id+"/toggle", token, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) DeleteTask(ctx context.Context, token, id string) error {
	return c.do(ctx, fasthttp.MethodDelete, "/tasks/"+id, token, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status == http.StatusNoContent {
		return nil
	}

	var env transport.RawEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%s %s: status %d: unreadable body: %w", method, path, status, err)
	}
	if status >= http.StatusBadRequest || env.Status == transport.StatusError {
		return envelopeError(status, env)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func envelopeError(status int, env transport.RawEnvelope) error {
	code := domain.ErrorCode(env.Code)
	if code == "" {
		code = domain.ErrCodeInternal
	}
	msg := env.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := domain.NewError(code, msg)
	if env.Meta != nil {
		e.Field = env.Meta.Field
	}
	return e
}

// patchBody encodes the set fields of p. A cleared due date is sent as an
// explicit null.
func patchBody(p domain.TaskPatch) map[string]interface{} {
	body := make(map[string]interface{})
	if p.Title != nil {
		body["title"] = *p.Title
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	if p.Priority != nil {
		body["priority"] = *p.Priority
	}
	switch {
	case p.ClearDueDate:
		body["due_date"] = nil
	case p.DueDate != nil:
		body["due_date"] = *p.DueDate
	}
	if p.Completed != nil {
		body["completed"] = *p.Completed
	}
	if p.Subtasks != nil {
		body["subtasks"] = *p.Subtasks
	}
	return body
}
