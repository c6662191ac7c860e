package data

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"MergeLane/internal/conf"
	"MergeLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHubClient(t *testing.T, mux http.Handler) *GitHubClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewGitHubClient(&conf.GitHub{
		BaseURL:         srv.URL,
		Owner:           "acme",
		Repo:            "widgets",
		Token:           "ghp_testtoken",
		Timeout:         5 * time.Second,
		MaxRetryElapsed: 2 * time.Second,
	}, nil, log.DefaultLogger)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewGitHubClient_Validation(t *testing.T) {
	_, err := NewGitHubClient(nil, nil, log.DefaultLogger)
	assert.Error(t, err)

	_, err = NewGitHubClient(&conf.GitHub{Owner: "acme"}, nil, log.DefaultLogger)
	assert.Error(t, err)

	_, err = NewGitHubClient(&conf.GitHub{Owner: "acme", Repo: "widgets", ProxyURL: "ftp://proxy:21"}, nil, log.DefaultLogger)
	assert.Error(t, err)

	c, err := NewGitHubClient(&conf.GitHub{Owner: "acme", Repo: "widgets"}, &conf.Engine{Merge: &conf.Engine_Merge{MergeMethod: "rebase"}}, log.DefaultLogger)
	require.NoError(t, err)
	assert.Equal(t, defaultGitHubBaseURL, c.baseURL)
	assert.Equal(t, "rebase", c.mergeMethod)
}

func TestGitHubClient_GetPRInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghp_testtoken", r.Header.Get("Authorization"))
		assert.Equal(t, githubAccept, r.Header.Get("Accept"))
		assert.Equal(t, githubUserAgent, r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"number":          42,
			"title":           "Add retry budget",
			"mergeable":       true,
			"mergeable_state": "clean",
			"head":            map[string]string{"sha": "abc123"},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/42/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"user": map[string]string{"login": "alice"}, "state": "CHANGES_REQUESTED", "submitted_at": "2026-01-02T10:00:00Z"},
			{"user": map[string]string{"login": "bob"}, "state": "APPROVED", "submitted_at": "2026-01-02T11:00:00Z"},
		})
	})
	c := newTestGitHubClient(t, mux)

	info, err := c.GetPRInfo(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 42, info.Number)
	assert.Equal(t, "Add retry budget", info.Title)
	assert.Equal(t, "abc123", info.HeadSHA)
	assert.True(t, info.Mergeable)
	assert.Equal(t, "clean", info.MergeableState)
	require.Len(t, info.Reviews, 2)
	assert.Equal(t, "alice", info.Reviews[0].Author)
	assert.Equal(t, model.ReviewChangesRequested, info.Reviews[0].State)
	assert.Equal(t, 2026, info.Reviews[0].SubmittedAt.Year())
}

func TestGitHubClient_GetPRInfo_NullMergeable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"number":          7,
			"mergeable":       nil,
			"mergeable_state": "unknown",
			"head":            map[string]string{"sha": "def456"},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []interface{}{})
	})
	c := newTestGitHubClient(t, mux)

	info, err := c.GetPRInfo(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, info.Mergeable)
	assert.Empty(t, info.Reviews)
}

func TestGitHubClient_GetStatusRollup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"number": 42, "head": map[string]string{"sha": "abc123"}})
	})
	mux.HandleFunc("/repos/acme/widgets/commits/abc123/check-runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"check_runs": []map[string]interface{}{
				{"name": "unit-tests", "status": "completed", "conclusion": "failure", "output": map[string]string{"title": "3 tests failed"}},
				{"name": "lint", "status": "in_progress", "conclusion": nil},
			},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/commits/abc123/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"statuses": []map[string]string{
				{"context": "ci/deploy-preview", "state": "success", "description": "Preview ready"},
			},
		})
	})
	c := newTestGitHubClient(t, mux)

	entries, err := c.GetStatusRollup(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, model.StatusRollupEntry{Name: "unit-tests", Status: "completed", Conclusion: "failure", Description: "3 tests failed"}, entries[0])
	assert.Equal(t, "in_progress", entries[1].Status)
	assert.Empty(t, entries[1].Conclusion)
	assert.Equal(t, model.StatusRollupEntry{Name: "ci/deploy-preview", State: "success", Description: "Preview ready"}, entries[2])
}

func TestGitHubClient_GetStatusRollup_StatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"number": 42, "head": map[string]string{"sha": "abc123"}})
	})
	mux.HandleFunc("/repos/acme/widgets/commits/abc123/check-runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"check_runs": []interface{}{}})
	})
	mux.HandleFunc("/repos/acme/widgets/commits/abc123/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	c := newTestGitHubClient(t, mux)

	_, err := c.GetStatusRollup(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get commit status of abc123")

	var apiErr *GitHubAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus())
	assert.Equal(t, "Not Found", apiErr.APIMessage())
}

func TestGitHubClient_Merge(t *testing.T) {
	var got ghMergeRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42/merge", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]interface{}{"sha": "merged123", "merged": true, "message": "Pull Request successfully merged"})
	})
	c := newTestGitHubClient(t, mux)

	out, err := c.Merge(context.Background(), 42, model.MergeMessage{Title: "Add retry budget (#42)", Body: "Closes #7"})
	require.NoError(t, err)

	assert.True(t, out.Merged)
	assert.Equal(t, "merged123", out.SHA)
	assert.Equal(t, "squash", got.MergeMethod)
	assert.Equal(t, "Add retry budget (#42)", got.CommitTitle)
	assert.Equal(t, "Closes #7", got.CommitMessage)
}

func TestGitHubClient_MergeRefused(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42/merge", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Head branch was modified. Review and try the merge again."})
	})
	c := newTestGitHubClient(t, mux)

	out, err := c.Merge(context.Background(), 42, model.MergeMessage{Title: "t"})
	require.NoError(t, err)
	assert.False(t, out.Merged)
	assert.Contains(t, out.Message, "Head branch was modified")
}

func TestGitHubClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
	})
	c := newTestGitHubClient(t, mux)

	_, err := c.GetPRInfo(context.Background(), 42)
	require.Error(t, err)

	var apiErr *GitHubAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "Bad credentials")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGitHubClient_ServerErrorIsRetried(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "Server Error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"number": 42, "head": map[string]string{"sha": "abc123"}})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/42/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []interface{}{})
	})
	c := newTestGitHubClient(t, mux)

	info, err := c.GetPRInfo(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "abc123", info.HeadSHA)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGitHubClient_CancelledContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "unavailable"})
	})
	c := newTestGitHubClient(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetPRInfo(ctx, 42)
	assert.Error(t, err)
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "Not Found", apiErrorMessage([]byte(`{"message":"Not Found"}`), "404 Not Found"))
	assert.Equal(t, "upstream broke", apiErrorMessage([]byte("upstream broke\n"), "502 Bad Gateway"))
	assert.Equal(t, "502 Bad Gateway", apiErrorMessage(nil, "502 Bad Gateway"))
}
