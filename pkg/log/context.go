package log

import (
	"context"
	"math/rand"
	"time"
)

// contextKey 是用于存储 RequestContext 的私有 key 类型
type contextKey string

const requestContextKey contextKey = "mergelane_request_context"

// RequestContext 存储请求追踪信息
// 通过 Context 传递，实现跨函数、跨模块的请求追踪
type RequestContext struct {
	RequestID  string    // 唯一请求 ID (10位短ID，如 mgrn0zfqda)
	PRNumber   int       // 当前处理的 PR 编号
	DecisionID string    // 合并决策 ID (uuid)
	StartTime  time.Time // 请求开始时间
}

// base36 字符集（小写字母 + 数字）
const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateRequestID 生成10位随机请求ID
// 格式: 小写字母+数字，例如 mgrn0zfqda
func GenerateRequestID() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[rand.Intn(len(base36Chars))]
	}
	return string(b)
}

// WithRequestContext 将 RequestContext 注入到 Context 中
// 通常在中间件中调用，为整个请求生命周期提供追踪信息
func WithRequestContext(ctx context.Context, requestID string) context.Context {
	reqCtx := &RequestContext{
		RequestID: requestID,
		StartTime: time.Now(),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// WithPRNumber 返回携带 PR 编号的 Context，其余追踪信息保持不变
func WithPRNumber(ctx context.Context, prNumber int) context.Context {
	next := *GetRequestContext(ctx)
	next.PRNumber = prNumber
	return context.WithValue(ctx, requestContextKey, &next)
}

// WithDecisionID 返回携带合并决策 ID 的 Context
func WithDecisionID(ctx context.Context, decisionID string) context.Context {
	next := *GetRequestContext(ctx)
	next.DecisionID = decisionID
	return context.WithValue(ctx, requestContextKey, &next)
}

// GetRequestContext 从 Context 中提取 RequestContext
// 如果不存在，返回一个默认的空 RequestContext
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID 从 Context 中提取 Request ID
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetPRNumber 从 Context 中提取 PR 编号，未设置时返回 0
func GetPRNumber(ctx context.Context) int {
	return GetRequestContext(ctx).PRNumber
}

// GetElapsedTime 获取请求已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
