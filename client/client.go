// Package client talks to the output backend over its REST boundary.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/fumikura/outfeed"
)

const defaultTimeout = 10 * time.Second

// Client issues paged fetches and submissions with bearer authorization.
// It performs no retries; callers decide whether to surface an error and
// let the user try again.
type Client struct {
	client    *http.Client
	base      string
	token     string
	userAgent string
	records   *cache.Cache
}

// New creates a client against baseURL, authorized by token.
func New(baseURL, token string) *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client:    &httpClient,
		base:      strings.TrimSuffix(baseURL, "/"),
		token:     token,
		userAgent: "outfeed-client",
		records:   cache.New(10*time.Minute, 15*time.Minute),
	}
	httpClient.Transport = c
	return c
}

// RoundTrip injects the authorization and user-agent headers.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return http.DefaultTransport.RoundTrip(req)
}

type outputsResponse struct {
	Data       []outfeed.Record `json:"data"`
	TotalPages int              `json:"total_pages"`
}

// FetchOutputs retrieves one page of records for the given filter. The
// backend filters and orders the results; the page is returned as-is.
func (c *Client) FetchOutputs(ctx context.Context, page int, f outfeed.Filter) (outfeed.FeedPage, error) {
	const op = "fetch outputs"

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	if tool := strings.TrimSpace(f.Tool); tool != "" {
		params.Set("tool", tool)
	}
	if date := strings.TrimSpace(f.Date); date != "" {
		params.Set("date", date)
	}

	endpoint := c.base + "/api/get-outputs/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return outfeed.FeedPage{}, outfeed.NetworkError{Op: op, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return outfeed.FeedPage{}, outfeed.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return outfeed.FeedPage{}, outfeed.NetworkError{Op: op, Status: resp.StatusCode}
	}

	var body outputsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return outfeed.FeedPage{}, outfeed.DecodeError{Op: op, Err: err}
	}

	result := outfeed.FeedPage{
		Items:      body.Data,
		TotalPages: body.TotalPages,
	}
	if result.TotalPages < 1 {
		result.TotalPages = 1
	}
	for i := range result.Items {
		result.Items[i].Normalize()
		c.cacheRecord(result.Items[i])
	}
	return result, nil
}

type storeRequest struct {
	ToolName string                `json:"tool_name"`
	Content  outfeed.OutputContent `json:"output_content"`
}

// StoreOutput validates and submits a draft, returning the server-echoed
// record. Validation failures never reach the network. The returned record
// is for local confirmation only; the push channel is the system of record
// for list updates.
func (c *Client) StoreOutput(ctx context.Context, d outfeed.Draft) (outfeed.Record, error) {
	clean, err := d.Clean()
	if err != nil {
		return outfeed.Record{}, err
	}

	payload, err := json.Marshal(storeRequest{
		ToolName: clean.ToolName,
		Content: outfeed.OutputContent{
			Questions:  clean.Questions,
			Difficulty: clean.Difficulty,
		},
	})
	if err != nil {
		return outfeed.Record{}, outfeed.SubmissionError{Message: err.Error()}
	}

	endpoint := c.base + "/api/store-output/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return outfeed.Record{}, outfeed.SubmissionError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return outfeed.Record{}, outfeed.SubmissionError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return outfeed.Record{}, outfeed.SubmissionError{
			Status:  resp.StatusCode,
			Message: readErrorMessage(resp.Body),
		}
	}

	var rec outfeed.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return outfeed.Record{}, outfeed.DecodeError{Op: "store output", Err: err}
	}
	rec.Normalize()
	c.cacheRecord(rec)
	return rec, nil
}

// Record returns a previously seen record by id, if still cached.
func (c *Client) Record(id string) (outfeed.Record, bool) {
	x, found := c.records.Get(id)
	if !found {
		return outfeed.Record{}, false
	}
	return x.(outfeed.Record), true
}

func (c *Client) cacheRecord(rec outfeed.Record) {
	if rec.ID == "" {
		return
	}
	c.records.Set(rec.ID, rec, cache.DefaultExpiration)
}

func readErrorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
