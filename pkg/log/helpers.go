package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// slowRequestThresholdMs 慢请求阈值（毫秒）
// CI watch 请求会长时间阻塞，因此不在此列
const slowRequestThresholdMs = 1000

// LogHelper 扩展 Kratos log.Helper，提供便捷的日志方法
// 通过在日志调用时自动添加 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func typed(msg, logType string, kvs []interface{}) []interface{} {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	return append(allKvs, "type", logType)
}

// API 记录 API 相关日志（表情符号: 🔗）
func (h *LogHelper) API(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "api", kvs)...)
}

// GitHub 记录 GitHub API 调用日志（表情符号: 🐙）
func (h *LogHelper) GitHub(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "github", kvs)...)
}

// Breaker 记录熔断器状态日志（表情符号: 🔌）
// 熔断器变化总是值得注意，因此使用 WARN 级别
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	h.Warnw(typed(msg, "breaker", kvs)...)
}

// Poll 记录 CI 轮询日志（表情符号: 🔄）
func (h *LogHelper) Poll(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "poll", kvs)...)
}

// Gate 记录质量门禁日志（表情符号: 🚦）
func (h *LogHelper) Gate(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "gate", kvs)...)
}

// Merge 记录合并操作日志（表情符号: 🔀）
func (h *LogHelper) Merge(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "merge", kvs)...)
}

// Lock 记录合并锁日志（表情符号: 🔐）
func (h *LogHelper) Lock(msg string, kvs ...interface{}) {
	h.Debugw(typed(msg, "lock", kvs)...)
}

// Success 记录成功操作日志（表情符号: ✅）
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "success", kvs)...)
}

// Database 记录数据库操作日志（表情符号: 💾）
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(typed(msg, "database", kvs)...)
}

// Redis 记录 Redis 操作日志（表情符号: 📦）
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.Debugw(typed(msg, "redis", kvs)...)
}

// Startup 记录启动相关日志（表情符号: 🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "startup", kvs)...)
}

// Audit 记录审计日志（表情符号: 📋）
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "audit", kvs)...)
}

// Scheduler 记录定时任务日志（表情符号: 🎯）
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "scheduler", kvs)...)
}

// Request 记录 HTTP 请求日志（表情符号根据状态码）
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%s)", method, url, status, formatDuration(durationMs))
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// ========== Context-Aware 日志方法 ==========
// 以下方法自动从 Context 提取追踪信息（Request ID, PR 编号, 决策 ID）

// RequestWithContext 记录带 Context 的 HTTP 请求日志
// 自动从 Context 提取 Request ID 并检测慢请求
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%s) | RequestID: %s",
		method, url, status, formatDuration(durationMs), reqCtx.RequestID)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"request_id", reqCtx.RequestID,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	if reqCtx.PRNumber > 0 {
		allKvs = append(allKvs, "pr_number", reqCtx.PRNumber)
	}
	h.Infow(allKvs...)

	if durationMs > slowRequestThresholdMs {
		h.SlowRequest(ctx, method, url, durationMs, slowRequestThresholdMs)
	}
}

// SlowRequest 记录慢请求警告（表情符号: 🐌）
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
		"type", "slow_request",
	)
	h.Warnw(allKvs...)
}

// MergeWithContext 记录带 PR 与决策 ID 的合并日志
func (h *LogHelper) MergeWithContext(ctx context.Context, msg string, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	allKvs := append([]interface{}{"msg", fmt.Sprintf("[%s] %s", reqCtx.RequestID, msg)}, kvs...)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"pr_number", reqCtx.PRNumber,
		"decision_id", reqCtx.DecisionID,
		"type", "merge",
	)
	h.Infow(allKvs...)
}

// formatDuration 格式化请求耗时: 150ms, 2.5s
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000.0)
}
