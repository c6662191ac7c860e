package server

import (
	"context"
	nethttp "net/http"

	"MergeLane/internal/biz"
	"MergeLane/internal/data"
	"MergeLane/internal/model"
	"MergeLane/internal/service"

	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationMergeServiceWatchCI          = "/mergelane.v1.MergeService/WatchCI"
	OperationMergeServiceReadiness        = "/mergelane.v1.MergeService/Readiness"
	OperationMergeServiceReport           = "/mergelane.v1.MergeService/Report"
	OperationMergeServiceMerge            = "/mergelane.v1.MergeService/Merge"
	OperationMergeServiceBreakerStatus    = "/mergelane.v1.MergeService/BreakerStatus"
	OperationMergeServiceResetBreaker     = "/mergelane.v1.MergeService/ResetBreaker"
	OperationMergeServiceForceOpenBreaker = "/mergelane.v1.MergeService/ForceOpenBreaker"
)

const markdownContentType = "text/markdown; charset=utf-8"

// PRRequest addresses a pull request by path.
type PRRequest struct {
	Number int `json:"number"`
}

// ReportRequest selects the report representation; format=json returns the cached record.
type ReportRequest struct {
	Number int    `json:"number"`
	Format string `json:"format"`
}

// MergeServiceHTTPServer is the HTTP surface of the merge service.
type MergeServiceHTTPServer interface {
	WatchCI(ctx context.Context, prNumber int) (*biz.PollResult, error)
	Readiness(ctx context.Context, req *service.ReadinessRequest) (*biz.MergeReadinessResult, error)
	Report(ctx context.Context, prNumber int) (*model.CachedReport, error)
	Merge(ctx context.Context, req *service.MergeRequest) (*service.MergeReply, error)
	BreakerStatus(ctx context.Context) *service.BreakerStatusReply
	ResetBreaker(ctx context.Context) *service.BreakerStatusReply
	ForceOpenBreaker(ctx context.Context) *service.BreakerStatusReply
}

// RegisterMergeServiceHTTPServer registers the merge routes on s.
func RegisterMergeServiceHTTPServer(s *http.Server, srv MergeServiceHTTPServer) {
	r := s.Route("/")
	r.POST("/v1/prs/{number}/ci/watch", _MergeService_WatchCI0_HTTP_Handler(srv))
	r.POST("/v1/prs/{number}/readiness", _MergeService_Readiness0_HTTP_Handler(srv))
	r.GET("/v1/prs/{number}/report", _MergeService_Report0_HTTP_Handler(srv))
	r.POST("/v1/prs/{number}/merge", _MergeService_Merge0_HTTP_Handler(srv))
	r.GET("/v1/breaker", _MergeService_BreakerStatus0_HTTP_Handler(srv))
	r.POST("/v1/breaker/reset", _MergeService_ResetBreaker0_HTTP_Handler(srv))
	r.POST("/v1/breaker/open", _MergeService_ForceOpenBreaker0_HTTP_Handler(srv))
}

func _MergeService_WatchCI0_HTTP_Handler(srv MergeServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in PRRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationMergeServiceWatchCI)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.WatchCI(ctx, req.(*PRRequest).Number)
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*biz.PollResult))
	}
}

func _MergeService_Readiness0_HTTP_Handler(srv MergeServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in service.ReadinessRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		var vars PRRequest
		if err := ctx.BindVars(&vars); err != nil {
			return err
		}
		in.Number = vars.Number
		http.SetOperation(ctx, OperationMergeServiceReadiness)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Readiness(ctx, req.(*service.ReadinessRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*biz.MergeReadinessResult))
	}
}

func _MergeService_Report0_HTTP_Handler(srv MergeServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ReportRequest
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationMergeServiceReport)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Report(ctx, req.(*ReportRequest).Number)
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		report := out.(*model.CachedReport)
		if in.Format == "json" {
			return ctx.Result(200, report)
		}
		return ctx.Blob(200, markdownContentType, []byte(report.Markdown))
	}
}

func _MergeService_Merge0_HTTP_Handler(srv MergeServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in service.MergeRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		var vars PRRequest
		if err := ctx.BindVars(&vars); err != nil {
			return err
		}
		in.Number = vars.Number
		http.SetOperation(ctx, OperationMergeServiceMerge)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Merge(ctx, req.(*service.MergeRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*service.MergeReply))
	}
}

func _MergeService_BreakerStatus0_HTTP_Handler(srv MergeServiceHTTPServer) func(ctx http.Context) error {
	return breakerHandler(OperationMergeServiceBreakerStatus, srv.BreakerStatus)
}

func _MergeService_ResetBreaker0_HTTP_Handler(srv MergeServiceHTTPServer) func(ctx http.Context) error {
	return breakerHandler(OperationMergeServiceResetBreaker, srv.ResetBreaker)
}

func _MergeService_ForceOpenBreaker0_HTTP_Handler(srv MergeServiceHTTPServer) func(ctx http.Context) error {
	return breakerHandler(OperationMergeServiceForceOpenBreaker, srv.ForceOpenBreaker)
}

func breakerHandler(operation string, call func(ctx context.Context) *service.BreakerStatusReply) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return call(ctx), nil
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*service.BreakerStatusReply))
	}
}

// HealthChecker reports the state of the backing stores.
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
	Healthy(ctx context.Context) bool
}

var _ HealthChecker = (*data.Data)(nil)

// RegisterHealthHTTPServer registers GET /healthz. It answers 503 when a configured store is down.
func RegisterHealthHTTPServer(s *http.Server, hc HealthChecker) {
	s.Route("/").GET("/healthz", func(ctx http.Context) error {
		status := nethttp.StatusOK
		if !hc.Healthy(ctx) {
			status = nethttp.StatusServiceUnavailable
		}
		return ctx.JSON(status, hc.Health(ctx))
	})
}
