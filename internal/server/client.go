/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dialogical/internal/compiler"
	"dialogical/internal/domain"
)

// Client is a minimal HTTP client for a remote compile service.
type Client struct {
	BaseURL string
	client  *http.Client
}

// NewClient creates a client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	return c.client.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Health returns nil when the service answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var body map[string]string
	if err := c.getJSON(ctx, "/healthz", &body); err != nil {
		return err
	}
	if body["status"] != "ok" {
		return fmt.Errorf("server unhealthy: %q", body["status"])
	}
	return nil
}

// Version returns the remote service version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var body map[string]string
	if err := c.getJSON(ctx, "/version", &body); err != nil {
		return "", err
	}
	return body["version"], nil
}

// Compile sends source to the service. A rejected script comes back as a
// *compiler.Error carrying the remote kind and line.
func (c *Client) Compile(ctx context.Context, name, source string) (*domain.Document, error) {
	path := "/compile?format=json"
	if name != "" {
		path += "&path=" + url.QueryEscape(name)
	}
	resp, err := c.do(ctx, http.MethodPost, path, strings.NewReader(source))
	if err != nil {
		return nil, &compiler.Error{Kind: compiler.KindIO, Path: name, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var doc domain.Document
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		return &doc, nil
	case http.StatusUnprocessableEntity:
		var eb ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil {
			return nil, fmt.Errorf("decode compile error: %w", err)
		}
		kind := compiler.ParseKind(eb.Kind)
		if kind == 0 {
			kind = compiler.KindIO
		}
		return nil, &compiler.Error{Kind: kind, Path: eb.Path, Line: eb.Line, Err: errors.New(eb.Error)}
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, &compiler.Error{
		Kind: compiler.KindIO,
		Path: name,
		Err:  fmt.Errorf("server POST /compile: %s: %s", resp.Status, strings.TrimSpace(string(msg))),
	}
}
