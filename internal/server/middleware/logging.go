// Package middleware provides HTTP middleware for request logging and request context propagation.
package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"

	pkglog "MergeLane/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RequestIDHeader carries the caller supplied request id.
const RequestIDHeader = "X-Request-ID"

// Logging returns a middleware that logs every request.
// It generates or propagates the request id, injects the request context
// (including the PR number found in the path) and flags slow requests.
//
// Example output:
//
//	🟢 POST /v1/prs/42/merge - 200 (542ms) | RequestID: mgrn0zfqda
//	🐌 [mgrn0zfqda] Slow request detected | POST /v1/prs/42/ci/watch | 13438ms
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
				prNumber  int
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					prNumber = prNumberFromPath(httpReq.URL.Path)
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}
					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")
					requestID = httpReq.Header.Get(RequestIDHeader)
				}
				if requestID == "" {
					requestID = pkglog.GenerateRequestID()
				}
				tr.ReplyHeader().Set(RequestIDHeader, requestID)
			}

			ctx = pkglog.WithRequestContext(ctx, requestID)
			if prNumber > 0 {
				ctx = pkglog.WithPRNumber(ctx, prNumber)
			}

			reply, err := handler(ctx, req)

			duration := time.Since(startTime).Milliseconds()
			status := extractHTTPStatus(err)

			kvs := []interface{}{"ip", ip, "user_agent", userAgent}
			if err != nil {
				kvs = append(kvs, "error", err)
			}
			logger.RequestWithContext(ctx, method, path, status, duration, kvs...)

			return reply, err
		}
	}
}

// extractClientIP returns the caller IP.
// Priority: X-Real-IP > X-Forwarded-For > RemoteAddr
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}

// extractHTTPStatus maps a handler error to the status the error encoder will write.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	return int(errors.FromError(err).Code)
}

// prNumberFromPath extracts N from paths shaped like /v1/prs/N/...
func prNumberFromPath(path string) int {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "prs" {
			n, err := strconv.Atoi(parts[i+1])
			if err != nil || n <= 0 {
				return 0
			}
			return n
		}
	}
	return 0
}
