////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package profile resolves profiles against the server to tell whether the
// viewer can still see them.
package profile

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"
)

// maxBodySize caps the size of a profile response that will be read.
const maxBodySize = 1 << 20

// Params configures the lookup Client.
type Params struct {
	// BaseURL is the scheme and host of the profile API.
	BaseURL string

	// Timeout bounds a single request.
	Timeout time.Duration

	// MaxPerSecond is the maximum number of lookups started per second.
	MaxPerSecond int

	// Headers are added to every request, e.g. the host session token.
	Headers map[string]string
}

// GetDefaultParams returns the default lookup parameters.
func GetDefaultParams() Params {
	return Params{
		BaseURL:      "https://grindr.mobi",
		Timeout:      10 * time.Second,
		MaxPerSecond: 5,
	}
}

// Profile is one entry of the profiles array.
type Profile struct {
	DisplayName *string `json:"displayName"`
}

// Response is the body of GET /v4/profiles/{id}.
type Response struct {
	Profiles []Profile `json:"profiles"`
}

// Result is the outcome of a lookup.
type Result struct {
	// Found is false when the server returned no profile, which is what a
	// profile that blocked the viewer looks like.
	Found bool

	// DisplayName is the display name of the first returned profile. It is
	// "null" when the server sent a JSON null.
	DisplayName string
}

// Lookup resolves a single profile.
type Lookup interface {
	Lookup(ctx context.Context, profileID int64) (Result, error)
}

// Client looks profiles up over HTTP.
type Client struct {
	params  Params
	http    *http.Client
	limiter ratelimit.Limiter
}

// NewClient returns a Client for the given parameters. If httpClient is nil a
// client with the configured timeout is used.
func NewClient(params Params, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: params.Timeout}
	}
	rate := params.MaxPerSecond
	if rate <= 0 {
		rate = GetDefaultParams().MaxPerSecond
	}
	return &Client{
		params:  params,
		http:    httpClient,
		limiter: ratelimit.New(rate, ratelimit.WithoutSlack),
	}
}

// Lookup fetches the profile. A non-2xx status or an undecodable body is an
// error.
func (c *Client) Lookup(ctx context.Context, profileID int64) (Result, error) {
	c.limiter.Take()

	url := strings.TrimRight(c.params.BaseURL, "/") + "/v4/profiles/" +
		strconv.FormatInt(profileID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, errors.WithMessagef(err,
			"failed to build profile request for %d", profileID)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.params.Headers {
		req.Header.Set(k, v)
	}

	jww.TRACE.Printf("[Profile] GET %s", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, errors.WithMessagef(err,
			"failed to fetch profile %d", profileID)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Result{}, errors.WithMessagef(err,
			"failed to read profile %d", profileID)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, errors.Errorf("failed to fetch profile %d: "+
			"status %d: %s", profileID, resp.StatusCode, body)
	}

	return Decode(body)
}

// Decode parses a profile response body.
func Decode(body []byte) (Result, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return Result{}, errors.WithMessage(err,
			"failed to decode profile response")
	}
	if len(r.Profiles) == 0 {
		return Result{Found: false}, nil
	}

	name := "null"
	if r.Profiles[0].DisplayName != nil {
		name = *r.Profiles[0].DisplayName
	}
	return Result{Found: true, DisplayName: name}, nil
}
