// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://healthchecks.io"
	maxPingBody    = 10_000
)

var (
	ErrStatus = errors.New("status code is invalid")
)

type createReq struct {
	Name        string   `json:"name"`
	Description string   `json:"desc,omitempty"`
	Grace       int      `json:"grace"`
	Schedule    string   `json:"schedule"`
	Slug        string   `json:"slug"`
	Tags        string   `json:"tags"`
	Timezone    string   `json:"tz"`
	Unique      []string `json:"unique"`
}

type createResp struct {
	PingURL string `json:"ping_url"`
}

// Client talks to the healthchecks.io management API
type Client struct {
	client *resty.Client
}

// New creates a client for the healthchecks.io project owning apiKey
func New(apiKey string) *Client {
	return NewWithBaseURL(defaultBaseURL, apiKey)
}

// NewWithBaseURL creates a client for a self-hosted healthchecks instance
func NewWithBaseURL(baseURL, apiKey string) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Api-Key", apiKey).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{client: client}
}

// Create a check for the ingest job, or return the existing check with the
// same slug, and return its ping URL
func (hc *Client) Create(ctx context.Context, name, slug string, tags []string, schedule string) (string, error) {
	command := createReq{
		Name:     name,
		Slug:     slug,
		Tags:     strings.Join(tags, " "),
		Grace:    3600,
		Schedule: schedule,
		Timezone: "Asia/Ho_Chi_Minh",
		Unique:   []string{"slug"},
	}

	result := createResp{}

	resp, err := hc.client.R().
		SetContext(ctx).
		SetBody(command).
		SetResult(&result).
		Post("/api/v3/checks/")
	if err != nil {
		return "", err
	}

	if resp.StatusCode() > 201 {
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return result.PingURL, nil
}

// Ping reports the outcome of a run to pingURL. The message is attached to
// the ping and shown in the healthchecks event log.
func Ping(ctx context.Context, pingURL string, failed bool, msg string) error {
	if pingURL == "" {
		return nil
	}

	url := strings.TrimSuffix(pingURL, "/")
	if failed {
		url += "/fail"
	}

	if len(msg) > maxPingBody {
		msg = msg[:maxPingBody]
	}

	resp, err := resty.New().
		SetTimeout(10*time.Second).
		R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetBody(msg).
		Post(url)
	if err != nil {
		return err
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	log.Debug().Bool("Failed", failed).Msg("sent healthcheck ping")

	return nil
}
