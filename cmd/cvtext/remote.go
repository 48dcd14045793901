package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/cvtext/internal/models"
)

// apiClient talks to a running cvtext server, which holds the SQLite and Bleve locks.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(serverURL string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(serverURL, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *apiClient) do(method, path string, query url.Values, want int, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func page(offset, limit int) url.Values {
	return url.Values{"offset": {strconv.Itoa(offset)}, "limit": {strconv.Itoa(limit)}}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	q := url.Values{
		"q":      {query.Query},
		"limit":  {strconv.Itoa(query.Limit)},
		"offset": {strconv.Itoa(query.Offset)},
		"fuzzy":  {strconv.FormatBool(query.Fuzzy)},
	}
	var response models.SearchResponse
	if err := newAPIClient(serverURL).do(http.MethodGet, "/api/v1/search", q, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *apiClient) resumes(offset, limit int) ([]*models.Resume, error) {
	var body struct {
		Resumes []*models.Resume `json:"resumes"`
	}
	if err := c.do(http.MethodGet, "/api/v1/resumes", page(offset, limit), http.StatusOK, &body); err != nil {
		return nil, err
	}
	return body.Resumes, nil
}

func (c *apiClient) failures(offset, limit int) ([]*models.ParseFailure, error) {
	var body struct {
		Failures []*models.ParseFailure `json:"failures"`
	}
	if err := c.do(http.MethodGet, "/api/v1/failures", page(offset, limit), http.StatusOK, &body); err != nil {
		return nil, err
	}
	return body.Failures, nil
}

func (c *apiClient) deleteResume(id string) error {
	return c.do(http.MethodDelete, "/api/v1/resumes/"+url.PathEscape(id), nil, http.StatusOK, nil)
}

func (c *apiClient) status() (*models.Status, error) {
	var s models.Status
	if err := c.do(http.MethodGet, "/api/v1/status", nil, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
