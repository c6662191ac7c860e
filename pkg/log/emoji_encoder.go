package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// typeEmoji 对应 LogHelper 各方法写入的 "type" 字段
var typeEmoji = map[string]string{
	"api":          "🔗",
	"request":      "🌐",
	"slow_request": "🐌",
	"github":       "🐙",
	"breaker":      "🔌",
	"poll":         "🔄",
	"gate":         "🚦",
	"merge":        "🔀",
	"lock":         "🔐",
	"success":      "✅",
	"database":     "💾",
	"redis":        "📦",
	"startup":      "🚀",
	"audit":        "📋",
	"scheduler":    "🎯",
}

// breakerStateEmoji 熔断器迁移日志按目标状态着色
var breakerStateEmoji = map[string]string{
	"closed":    "🟢",
	"half_open": "🟡",
	"open":      "🔴",
}

const terminalEmoji = "⛔"

func statusEmoji(status int64) string {
	switch {
	case status >= 500:
		return "🔴"
	case status >= 400:
		return "🟠"
	case status >= 300:
		return "🟡"
	default:
		return "🟢"
	}
}

func levelEmoji(level zapcore.Level) string {
	switch {
	case level >= zapcore.ErrorLevel:
		return "❌"
	case level == zapcore.WarnLevel:
		return "⚠️"
	case level == zapcore.InfoLevel:
		return "ℹ️"
	default:
		return "🐛"
	}
}

// pickEmoji 选择优先级: HTTP status > 终止性失败 (kind=terminal) > 熔断目标状态 > type > 日志级别
func pickEmoji(level zapcore.Level, fields []zapcore.Field) string {
	var logType, kind, to string
	var status int64
	for _, f := range fields {
		switch f.Key {
		case "type":
			logType = stringField(f)
		case "kind":
			kind = stringField(f)
		case "to":
			to = stringField(f)
		case "status":
			if f.Type == zapcore.Int64Type || f.Type == zapcore.Int32Type {
				status = f.Integer
			}
		}
	}

	if status > 0 {
		return statusEmoji(status)
	}
	if kind == "terminal" {
		return terminalEmoji
	}
	if logType == "breaker" {
		if e, ok := breakerStateEmoji[to]; ok {
			return e
		}
	}
	if e, ok := typeEmoji[logType]; ok {
		return e
	}
	return levelEmoji(level)
}

func stringField(f zapcore.Field) string {
	if f.Type == zapcore.StringType {
		return f.String
	}
	return ""
}

// EmojiConsoleEncoder 包装 ConsoleEncoder，在消息前加上表情符号
type EmojiConsoleEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder 创建带表情符号的控制台编码器
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// EncodeEntry implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	entry.Message = pickEmoji(entry.Level, fields) + " " + entry.Message
	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: enc.Encoder.Clone()}
}
