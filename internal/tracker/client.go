package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client is a hand-rolled HTTP client for a GitHub-style issue tracker API.
// All requests go through a rate limiter; the secondary-rate-limit budget on
// write endpoints is easy to exhaust from a bot.
type Client struct {
	baseURL string
	repo    string // "owner/name"
	auth    AuthProvider
	client  *http.Client
	limiter *rate.Limiter
	dryRun  bool
}

// Options configures a tracker client.
type Options struct {
	BaseURL string
	Repo    string
	Auth    AuthProvider
	DryRun  bool
	Timeout time.Duration
}

// NewClient creates a tracker client.
func NewClient(opts Options) (*Client, error) {
	if opts.Repo == "" || !strings.Contains(opts.Repo, "/") {
		return nil, fmt.Errorf("repo must be in owner/name form, got %q", opts.Repo)
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("auth provider is required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	if baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		repo:    opts.Repo,
		auth:    opts.Auth,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(1*time.Second), 5),
		dryRun:  opts.DryRun,
	}, nil
}

// GetIssue gets an issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	requestURL := fmt.Sprintf("%s/repos/%s/issues/%d", c.baseURL, c.repo, number)

	var issue Issue
	if err := c.do(ctx, "GET", requestURL, nil, http.StatusOK, &issue); err != nil {
		return nil, fmt.Errorf("failed to get issue %d: %w", number, err)
	}
	return &issue, nil
}

// GetComments gets the full comment thread of an issue, oldest first. The
// endpoint pages at 100 comments; all pages are fetched.
func (c *Client) GetComments(ctx context.Context, number int) ([]Comment, error) {
	var all []Comment
	for page := 1; ; page++ {
		requestURL := fmt.Sprintf("%s/repos/%s/issues/%d/comments?per_page=100&page=%d",
			c.baseURL, c.repo, number, page)

		var comments []Comment
		if err := c.do(ctx, "GET", requestURL, nil, http.StatusOK, &comments); err != nil {
			return nil, fmt.Errorf("failed to get comments for issue %d: %w", number, err)
		}
		all = append(all, comments...)
		if len(comments) < 100 {
			return all, nil
		}
	}
}

// PostComment posts a comment on an issue and returns the new comment ID.
// In dry-run mode the body is logged and no request is made.
func (c *Client) PostComment(ctx context.Context, number int, body string) (int64, error) {
	if c.dryRun {
		log.Info().Int("issue", number).Int("bytes", len(body)).Msg("Dry run, comment not posted")
		fmt.Printf("--- dry-run comment for issue #%d ---\n%s\n", number, body)
		return 0, nil
	}

	requestURL := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.baseURL, c.repo, number)
	payload := map[string]string{"body": body}

	var created Comment
	if err := c.do(ctx, "POST", requestURL, payload, http.StatusCreated, &created); err != nil {
		return 0, fmt.Errorf("failed to post comment on issue %d: %w", number, err)
	}
	return created.ID, nil
}

// UpdateComment replaces the body of an existing comment.
func (c *Client) UpdateComment(ctx context.Context, commentID int64, body string) error {
	if c.dryRun {
		log.Info().Int64("comment", commentID).Int("bytes", len(body)).Msg("Dry run, comment not updated")
		return nil
	}

	requestURL := fmt.Sprintf("%s/repos/%s/issues/comments/%d", c.baseURL, c.repo, commentID)
	payload := map[string]string{"body": body}

	if err := c.do(ctx, "PATCH", requestURL, payload, http.StatusOK, nil); err != nil {
		return fmt.Errorf("failed to update comment %d: %w", commentID, err)
	}
	return nil
}

// AddLabels adds labels to an issue.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	if c.dryRun {
		log.Info().Int("issue", number).Strs("labels", labels).Msg("Dry run, labels not added")
		return nil
	}

	requestURL := fmt.Sprintf("%s/repos/%s/issues/%d/labels", c.baseURL, c.repo, number)
	payload := map[string][]string{"labels": labels}

	if err := c.do(ctx, "POST", requestURL, payload, http.StatusOK, nil); err != nil {
		return fmt.Errorf("failed to add labels to issue %d: %w", number, err)
	}
	return nil
}

// AddAssignees assigns users to an issue.
func (c *Client) AddAssignees(ctx context.Context, number int, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	if c.dryRun {
		log.Info().Int("issue", number).Strs("assignees", assignees).Msg("Dry run, assignees not added")
		return nil
	}

	requestURL := fmt.Sprintf("%s/repos/%s/issues/%d/assignees", c.baseURL, c.repo, number)
	payload := map[string][]string{"assignees": assignees}

	if err := c.do(ctx, "POST", requestURL, payload, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("failed to add assignees to issue %d: %w", number, err)
	}
	return nil
}

// SearchIssues searches issues in the configured repository.
func (c *Client) SearchIssues(ctx context.Context, query string) (*SearchResult, error) {
	q := fmt.Sprintf("repo:%s %s", c.repo, query)
	requestURL := fmt.Sprintf("%s/search/issues?q=%s&per_page=10", c.baseURL, url.QueryEscape(q))

	var result SearchResult
	if err := c.do(ctx, "GET", requestURL, nil, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("issue search failed: %w", err)
	}
	return &result, nil
}

// GetFileContent fetches a file from the repository and returns its decoded
// content.
func (c *Client) GetFileContent(ctx context.Context, path string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	requestURL := fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, c.repo, url.PathEscape(path))

	var file FileContent
	if err := c.do(ctx, "GET", requestURL, nil, http.StatusOK, &file); err != nil {
		return "", fmt.Errorf("failed to get file %s: %w", path, err)
	}

	if file.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("failed to decode file %s: %w", path, err)
		}
		return string(decoded), nil
	}
	return file.Content, nil
}

// do executes one API request and decodes the response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, requestURL string, payload interface{}, wantStatus int, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth token: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+token)
	req.Header.Add("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
