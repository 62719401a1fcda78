package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

const apiPrefix = "/v1/riskdesk"

type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newClient(baseURL, token string) *client {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx gateway response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &payload) == nil && payload.Error != "" {
		return fmt.Sprintf("error (%d): %s", e.Status, payload.Error)
	}
	return fmt.Sprintf("error (%d): %s", e.Status, strings.TrimSpace(e.Body))
}

func (c *client) request(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var buf io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

// call performs the request and decodes a 2xx body into out. A nil out skips
// decoding.
func (c *client) call(ctx context.Context, method, path string, body, out any) error {
	status, resp, err := c.request(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status >= 300 {
		return &apiError{Status: status, Body: string(resp)}
	}
	if out == nil || len(resp) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type sessionInfo struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}

func (c *client) openSession(ctx context.Context) (sessionInfo, []workflow.View, error) {
	var out struct {
		Session  sessionInfo     `json:"session"`
		Features []workflow.View `json:"features"`
	}
	err := c.call(ctx, http.MethodPost, apiPrefix+"/sessions", nil, &out)
	return out.Session, out.Features, err
}

func (c *client) closeSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, apiPrefix+"/sessions/"+url.PathEscape(id), nil, nil)
}

// runFeature triggers rt on the session. busy reports a 409: a run was
// already in flight and view is its current card.
func (c *client) runFeature(ctx context.Context, id string, rt domain.RiskType) (view workflow.View, busy bool, err error) {
	var out struct {
		Feature workflow.View `json:"feature"`
	}
	path := apiPrefix + "/sessions/" + url.PathEscape(id) + "/features/" + url.PathEscape(string(rt)) + "/run"
	status, resp, err := c.request(ctx, http.MethodPost, path, nil)
	if err != nil {
		return workflow.View{}, false, err
	}
	if status != http.StatusAccepted && status != http.StatusConflict {
		return workflow.View{}, false, &apiError{Status: status, Body: string(resp)}
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return workflow.View{}, false, fmt.Errorf("decode run response: %w", err)
	}
	return out.Feature, status == http.StatusConflict, nil
}

func (c *client) feature(ctx context.Context, id string, rt domain.RiskType) (workflow.View, error) {
	var out struct {
		Feature workflow.View `json:"feature"`
	}
	path := apiPrefix + "/sessions/" + url.PathEscape(id) + "/features/" + url.PathEscape(string(rt))
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out.Feature, err
}

func (c *client) listRuns(ctx context.Context, rt string, limit int) ([]domain.RunRecord, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if strings.TrimSpace(rt) != "" {
		q.Set("riskType", rt)
	}
	path := apiPrefix + "/results"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Runs []domain.RunRecord `json:"runs"`
	}
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out.Runs, err
}

func (c *client) getRun(ctx context.Context, identifier string) (domain.RunRecord, error) {
	var out struct {
		Run domain.RunRecord `json:"run"`
	}
	err := c.call(ctx, http.MethodGet, apiPrefix+"/results/"+url.PathEscape(identifier), nil, &out)
	return out.Run, err
}

// waitFeature polls the card until its control is terminal. onView sees every
// fetched card.
func (c *client) waitFeature(ctx context.Context, id string, rt domain.RiskType, every time.Duration, onView func(workflow.View)) (workflow.View, error) {
	if every <= 0 {
		every = 2 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		v, err := c.feature(ctx, id, rt)
		if err != nil {
			var apiErr *apiError
			if !errors.As(err, &apiErr) || apiErr.Status < 500 {
				return v, err
			}
		} else {
			if onView != nil {
				onView(v)
			}
			if v.Control == workflow.ControlCompleted || v.Control == workflow.ControlFailed {
				return v, nil
			}
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-t.C:
		}
	}
}
