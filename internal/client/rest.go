package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/model"
)

// APIError is a non-2xx answer from the notification API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notification api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusBadRequest:
		return apperr.ErrInvalidArgument
	}
	return nil
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// API is the HTTP client for the notification endpoints. Failed calls are returned to the
// caller as is; only the hub connection retries.
type API struct {
	base string
	http *http.Client
}

func NewAPI(conf APIConfig) *API {
	if conf.Timeout <= 0 {
		conf.Timeout = 10 * time.Second
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &API{
		base: strings.TrimRight(conf.BaseURL, "/"),
		http: &http.Client{Transport: tr, Timeout: conf.Timeout},
	}
}

func (a *API) List(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	err := a.do(ctx, http.MethodGet, "/notifications", nil, &out)
	return out, err
}

func (a *API) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	var out []model.Notification
	err := a.do(ctx, http.MethodGet, "/notifications/user/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (a *API) Get(ctx context.Context, id string) (model.Notification, error) {
	var out model.Notification
	err := a.do(ctx, http.MethodGet, "/notifications/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (a *API) Send(ctx context.Context, d model.Draft) (model.Notification, error) {
	var out model.Notification
	err := a.do(ctx, http.MethodPost, "/notifications", d, &out)
	return out, err
}

func (a *API) SendTest(ctx context.Context) (model.Notification, error) {
	var out model.Notification
	err := a.do(ctx, http.MethodPost, "/notifications/test", nil, &out)
	return out, err
}

func (a *API) MarkRead(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (a *API) MarkAllRead(ctx context.Context, userID string) error {
	return a.do(ctx, http.MethodPut, "/notifications/user/"+url.PathEscape(userID)+"/read-all", nil, nil)
}

func (a *API) Delete(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %w", method, path, &APIError{Status: resp.StatusCode, Message: errorMessage(b, resp.Status)})
	}

	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorMessage(body []byte, fallback string) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return fallback
}
