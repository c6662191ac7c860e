package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MergeLane/internal/conf"
	"MergeLane/internal/model"
	"MergeLane/pkg/httpclient"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultGitHubBaseURL   = "https://api.github.com"
	defaultGitHubTimeout   = 30 * time.Second
	defaultRetryMaxElapsed = 30 * time.Second
	defaultMergeMethod     = "squash"
	githubUserAgent        = "MergeLane/1.0"
	githubAccept           = "application/vnd.github+json"
	githubAPIVersion       = "2022-11-28"
)

// GitHubAPIError is a non-2xx response from the GitHub REST API.
type GitHubAPIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *GitHubAPIError) Error() string {
	return fmt.Sprintf("github: %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *GitHubAPIError) HTTPStatus() int { return e.StatusCode }

// APIMessage returns GitHub's error message without the request line.
func (e *GitHubAPIError) APIMessage() string { return e.Message }

// Retryable reports whether the same request may succeed later.
func (e *GitHubAPIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// GitHubClient implements the PR-info, status-rollup and merge collaborators over GitHub REST v3.
type GitHubClient struct {
	baseURL         string
	owner           string
	repo            string
	token           string
	mergeMethod     string
	maxRetryElapsed time.Duration
	httpClient      *http.Client
	logger          *log.Helper
}

// NewGitHubClient creates the GitHub client for the configured repository.
func NewGitHubClient(c *conf.GitHub, e *conf.Engine, logger log.Logger) (*GitHubClient, error) {
	helper := log.NewHelper(logger)
	if c == nil {
		return nil, errors.New("github configuration is required")
	}
	if c.Owner == "" || c.Repo == "" {
		return nil, errors.New("github owner and repo are required")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultGitHubTimeout
	}
	hc, err := httpclient.New(c.ProxyURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("github http client: %w", err)
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGitHubBaseURL
	}
	maxElapsed := c.MaxRetryElapsed
	if maxElapsed <= 0 {
		maxElapsed = defaultRetryMaxElapsed
	}
	method := defaultMergeMethod
	if e != nil && e.Merge != nil && e.Merge.MergeMethod != "" {
		method = e.Merge.MergeMethod
	}

	if c.Token == "" {
		helper.Warn("GitHub token is empty, only public repositories are reachable")
	}
	helper.Infow("msg", "GitHub client configured",
		"base_url", baseURL,
		"repo", c.Owner+"/"+c.Repo,
		"proxy", httpclient.Redact(c.ProxyURL),
		"merge_method", method)

	return &GitHubClient{
		baseURL:         baseURL,
		owner:           c.Owner,
		repo:            c.Repo,
		token:           c.Token,
		mergeMethod:     method,
		maxRetryElapsed: maxElapsed,
		httpClient:      hc,
		logger:          helper,
	}, nil
}

type ghPull struct {
	Number         int    `json:"number"`
	Title          string `json:"title"`
	Mergeable      *bool  `json:"mergeable"`
	MergeableState string `json:"mergeable_state"`
	Head           struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

type ghReview struct {
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	State       string    `json:"state"`
	Body        string    `json:"body"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type ghCheckRuns struct {
	CheckRuns []struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
		Output     struct {
			Title   string `json:"title"`
			Summary string `json:"summary"`
		} `json:"output"`
	} `json:"check_runs"`
}

type ghCombinedStatus struct {
	Statuses []struct {
		Context     string `json:"context"`
		State       string `json:"state"`
		Description string `json:"description"`
	} `json:"statuses"`
}

type ghMergeRequest struct {
	MergeMethod   string `json:"merge_method"`
	CommitTitle   string `json:"commit_title,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
}

type ghMergeResponse struct {
	SHA     string `json:"sha"`
	Merged  bool   `json:"merged"`
	Message string `json:"message"`
}

// GetPRInfo fetches the pull request and its reviews.
func (g *GitHubClient) GetPRInfo(ctx context.Context, prNumber int) (*model.PRInfo, error) {
	pull, err := g.getPull(ctx, prNumber)
	if err != nil {
		return nil, err
	}

	var reviews []ghReview
	if err := g.do(ctx, http.MethodGet, g.repoPath("/pulls/%d/reviews?per_page=100", prNumber), nil, &reviews); err != nil {
		return nil, fmt.Errorf("get reviews of PR #%d: %w", prNumber, err)
	}

	info := &model.PRInfo{
		Number:         pull.Number,
		Title:          pull.Title,
		HeadSHA:        pull.Head.SHA,
		Mergeable:      pull.Mergeable != nil && *pull.Mergeable,
		MergeableState: pull.MergeableState,
		FetchedAt:      time.Now(),
	}
	for _, r := range reviews {
		info.Reviews = append(info.Reviews, model.Review{
			Author:      r.User.Login,
			State:       r.State,
			Body:        r.Body,
			SubmittedAt: r.SubmittedAt,
		})
	}
	return info, nil
}

// GetStatusRollup returns check runs followed by commit status contexts of the PR head.
func (g *GitHubClient) GetStatusRollup(ctx context.Context, prNumber int) ([]model.StatusRollupEntry, error) {
	pull, err := g.getPull(ctx, prNumber)
	if err != nil {
		return nil, err
	}
	sha := pull.Head.SHA

	var (
		runs     ghCheckRuns
		combined ghCombinedStatus
	)
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := g.do(egctx, http.MethodGet, g.repoPath("/commits/%s/check-runs?per_page=100", sha), nil, &runs); err != nil {
			return fmt.Errorf("get check runs of %s: %w", sha, err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := g.do(egctx, http.MethodGet, g.repoPath("/commits/%s/status", sha), nil, &combined); err != nil {
			return fmt.Errorf("get commit status of %s: %w", sha, err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	entries := make([]model.StatusRollupEntry, 0, len(runs.CheckRuns)+len(combined.Statuses))
	for _, r := range runs.CheckRuns {
		desc := r.Output.Title
		if desc == "" {
			desc = r.Output.Summary
		}
		entries = append(entries, model.StatusRollupEntry{
			Name:        r.Name,
			Status:      r.Status,
			Conclusion:  r.Conclusion,
			Description: desc,
		})
	}
	for _, s := range combined.Statuses {
		entries = append(entries, model.StatusRollupEntry{
			Name:        s.Context,
			State:       s.State,
			Description: s.Description,
		})
	}
	return entries, nil
}

// Merge merges the pull request with the configured merge method.
// GitHub refusing the merge (405, 409) is reported as an unmerged outcome, not an error.
func (g *GitHubClient) Merge(ctx context.Context, prNumber int, msg model.MergeMessage) (*model.MergeOutcome, error) {
	req := ghMergeRequest{
		MergeMethod:   g.mergeMethod,
		CommitTitle:   msg.Title,
		CommitMessage: msg.Body,
	}

	var resp ghMergeResponse
	err := g.do(ctx, http.MethodPut, g.repoPath("/pulls/%d/merge", prNumber), req, &resp)
	if err != nil {
		var apiErr *GitHubAPIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusMethodNotAllowed || apiErr.StatusCode == http.StatusConflict) {
			return &model.MergeOutcome{Merged: false, Message: apiErr.Message}, nil
		}
		return nil, fmt.Errorf("merge PR #%d: %w", prNumber, err)
	}

	g.logger.Infow("msg", "pull request merged",
		"pr_number", prNumber,
		"sha", resp.SHA,
		"merge_method", g.mergeMethod)
	return &model.MergeOutcome{Merged: resp.Merged, SHA: resp.SHA, Message: resp.Message}, nil
}

func (g *GitHubClient) getPull(ctx context.Context, prNumber int) (*ghPull, error) {
	var pull ghPull
	if err := g.do(ctx, http.MethodGet, g.repoPath("/pulls/%d", prNumber), nil, &pull); err != nil {
		return nil, fmt.Errorf("get PR #%d: %w", prNumber, err)
	}
	return &pull, nil
}

func (g *GitHubClient) repoPath(format string, args ...interface{}) string {
	return fmt.Sprintf("/repos/%s/%s", g.owner, g.repo) + fmt.Sprintf(format, args...)
}

// do sends one API request, retrying 5xx and transport errors until maxRetryElapsed.
func (g *GitHubClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return backoff.Permanent(fmt.Errorf("encode request: %w", err))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = g.maxRetryElapsed

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := g.once(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		var apiErr *GitHubAPIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		g.logger.Warnw("msg", "GitHub request failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt,
			"error", err)
		return err
	}, backoff.WithContext(bo, ctx))
}

func (g *GitHubClient) once(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", githubAccept)
	req.Header.Set("User-Agent", githubUserAgent)
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GitHubAPIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    apiErrorMessage(data, resp.Status),
		}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// apiErrorMessage extracts GitHub's "message" field so classifiers see e.g. "Bad credentials".
func apiErrorMessage(body []byte, status string) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	if len(body) > 0 && len(body) < 512 {
		return strings.TrimSpace(string(body))
	}
	return status
}
