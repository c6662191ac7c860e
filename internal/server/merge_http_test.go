package server

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MergeLane/internal/biz"
	"MergeLane/internal/model"
	"MergeLane/internal/server/middleware"
	"MergeLane/internal/service"
	pkglog "MergeLane/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMergeService struct {
	watched   int
	readiness *service.ReadinessRequest
	merge     *service.MergeRequest
	report    *model.CachedReport
	err       error
	resets    int
	opens     int
	lastPR    int
}

func (f *fakeMergeService) WatchCI(ctx context.Context, prNumber int) (*biz.PollResult, error) {
	f.watched = prNumber
	f.lastPR = pkglog.GetPRNumber(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &biz.PollResult{PRNumber: prNumber, Success: true, PollCount: 2}, nil
}

func (f *fakeMergeService) Readiness(_ context.Context, req *service.ReadinessRequest) (*biz.MergeReadinessResult, error) {
	f.readiness = req
	return &biz.MergeReadinessResult{DecisionID: "d-1", PRNumber: req.Number, CanMerge: true, BlockingReasons: []string{}}, nil
}

func (f *fakeMergeService) Report(_ context.Context, prNumber int) (*model.CachedReport, error) {
	if f.report == nil {
		return nil, kerrors.NotFound(service.ReasonReportNotFound, "no report")
	}
	return f.report, nil
}

func (f *fakeMergeService) Merge(_ context.Context, req *service.MergeRequest) (*service.MergeReply, error) {
	f.merge = req
	return &service.MergeReply{MergeResult: biz.MergeResult{Success: true, SHA: "merged123"}, DecisionID: "d-1", PRNumber: req.Number}, nil
}

func (f *fakeMergeService) BreakerStatus(_ context.Context) *service.BreakerStatusReply {
	return &service.BreakerStatusReply{BreakerSnapshot: biz.BreakerSnapshot{State: biz.CircuitClosed}}
}

func (f *fakeMergeService) ResetBreaker(ctx context.Context) *service.BreakerStatusReply {
	f.resets++
	return f.BreakerStatus(ctx)
}

func (f *fakeMergeService) ForceOpenBreaker(_ context.Context) *service.BreakerStatusReply {
	f.opens++
	return &service.BreakerStatusReply{BreakerSnapshot: biz.BreakerSnapshot{State: biz.CircuitOpen}}
}

type fakeHealth struct {
	healthy bool
}

func (h fakeHealth) Health(context.Context) map[string]string {
	if h.healthy {
		return map[string]string{"redis": "ok", "database": "disabled"}
	}
	return map[string]string{"redis": "dial tcp: connection refused", "database": "disabled"}
}

func (h fakeHealth) Healthy(context.Context) bool { return h.healthy }

func newTestServer(svc MergeServiceHTTPServer, hc HealthChecker) *http.Server {
	srv := http.NewServer(http.Middleware(middleware.Logging(pkglog.NewLogHelper(log.DefaultLogger))))
	RegisterMergeServiceHTTPServer(srv, svc)
	if hc != nil {
		RegisterHealthHTTPServer(srv, hc)
	}
	return srv
}

func do(t *testing.T, srv *http.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *nethttp.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestWatchCIRoute(t *testing.T) {
	svc := &fakeMergeService{}
	srv := newTestServer(svc, nil)

	rec := do(t, srv, nethttp.MethodPost, "/v1/prs/42/ci/watch", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)

	var got biz.PollResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, 42, svc.watched)
	assert.Equal(t, 42, svc.lastPR, "request context carries the PR number")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestWatchCIRoute_ServiceError(t *testing.T) {
	svc := &fakeMergeService{err: kerrors.ServiceUnavailable(service.ReasonCircuitOpen, "circuit breaker is open")}
	srv := newTestServer(svc, nil)

	rec := do(t, srv, nethttp.MethodPost, "/v1/prs/42/ci/watch", "")
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), service.ReasonCircuitOpen)
}

func TestReadinessRoute(t *testing.T) {
	svc := &fakeMergeService{}
	srv := newTestServer(svc, nil)

	body := `{"metrics":{"code_coverage":85},"checks":{"tests_passed":true,"ci_passed":true}}`
	rec := do(t, srv, nethttp.MethodPost, "/v1/prs/7/readiness", body)
	require.Equal(t, nethttp.StatusOK, rec.Code)

	require.NotNil(t, svc.readiness)
	assert.Equal(t, 7, svc.readiness.Number)
	assert.Equal(t, 85.0, svc.readiness.Metrics.CodeCoverage)
	assert.True(t, svc.readiness.Checks.TestsPassed)
	require.NotNil(t, svc.readiness.Checks.CIPassed)
	assert.True(t, *svc.readiness.Checks.CIPassed)
}

func TestMergeRoute(t *testing.T) {
	svc := &fakeMergeService{}
	srv := newTestServer(svc, nil)

	rec := do(t, srv, nethttp.MethodPost, "/v1/prs/42/merge", `{"issue":7,"summary":"Retry budget"}`)
	require.Equal(t, nethttp.StatusOK, rec.Code)

	require.NotNil(t, svc.merge)
	assert.Equal(t, 42, svc.merge.Number)
	assert.Equal(t, 7, svc.merge.Issue)
	assert.Equal(t, "Retry budget", svc.merge.Summary)
	assert.Contains(t, rec.Body.String(), `"sha":"merged123"`)
	assert.Contains(t, rec.Body.String(), `"decision_id":"d-1"`)
}

func TestReportRoute(t *testing.T) {
	svc := &fakeMergeService{}
	srv := newTestServer(svc, nil)

	rec := do(t, srv, nethttp.MethodGet, "/v1/prs/42/report", "")
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	svc.report = &model.CachedReport{DecisionID: "d-1", PRNumber: 42, CanMerge: true, Markdown: "## Quality Gate Report\n"}
	rec = do(t, srv, nethttp.MethodGet, "/v1/prs/42/report", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, markdownContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "## Quality Gate Report\n", rec.Body.String())

	rec = do(t, srv, nethttp.MethodGet, "/v1/prs/42/report?format=json", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"can_merge":true`)
}

func TestBreakerRoutes(t *testing.T) {
	svc := &fakeMergeService{}
	srv := newTestServer(svc, nil)

	rec := do(t, srv, nethttp.MethodGet, "/v1/breaker", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"closed"`)

	rec = do(t, srv, nethttp.MethodPost, "/v1/breaker/open", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"open"`)
	assert.Equal(t, 1, svc.opens)

	rec = do(t, srv, nethttp.MethodPost, "/v1/breaker/reset", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.resets)
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(&fakeMergeService{}, fakeHealth{healthy: true})
	rec := do(t, srv, nethttp.MethodGet, "/healthz", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	srv = newTestServer(&fakeMergeService{}, fakeHealth{healthy: false})
	rec = do(t, srv, nethttp.MethodGet, "/healthz", "")
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
}
