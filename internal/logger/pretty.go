// internal/logger/pretty.go
package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Colors for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

func prettyEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		CallerKey:      "",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    customLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// PrettyEncoder creates a user-friendly console encoder
func PrettyEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(prettyEncoderConfig())
}

// customLevelEncoder formats log levels with colors
func customLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(fmt.Sprintf("%s[DEBUG]%s", ColorCyan, ColorReset))
	case zapcore.InfoLevel:
		enc.AppendString(fmt.Sprintf("%s[INFO]%s", ColorGreen, ColorReset))
	case zapcore.WarnLevel:
		enc.AppendString(fmt.Sprintf("%s[WARN]%s", ColorYellow, ColorReset))
	case zapcore.ErrorLevel:
		enc.AppendString(fmt.Sprintf("%s[ERROR]%s", ColorRed, ColorReset))
	case zapcore.FatalLevel:
		enc.AppendString(fmt.Sprintf("%s[FATAL]%s", ColorRed+ColorBold, ColorReset))
	default:
		enc.AppendString(fmt.Sprintf("[%s]", level.CapitalString()))
	}
}

// customTimeEncoder formats time in a readable way
func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// FormatMessage превращает известные сообщения бандлера в короткие строки для консоли.
// Неизвестные сообщения возвращаются как есть.
func FormatMessage(msg string, fields ...zapcore.Field) string {
	switch {
	case strings.Contains(msg, "Relay authenticated"):
		endpoint := extractField(fields, "endpoint")
		return fmt.Sprintf("%s✓ Block engine authenticated: %s%s", ColorGreen, endpoint, ColorReset)

	case strings.Contains(msg, "Amounts allocated"):
		count := extractField(fields, "recipients")
		return fmt.Sprintf("%s📋 Allocated amounts for %s recipients%s", ColorBlue, count, ColorReset)

	case strings.Contains(msg, "Bundle sent"):
		id := extractField(fields, "bundle_id")
		chunk := extractField(fields, "chunk")
		return fmt.Sprintf("%s📤 Bundle #%s sent: %s%s", ColorYellow, chunk, shortenID(id), ColorReset)

	case strings.Contains(msg, "Bundle landed"):
		id := extractField(fields, "bundle_id")
		slot := extractField(fields, "slot")
		return fmt.Sprintf("%s✅ Bundle landed in slot %s: %s%s", ColorGreen, slot, shortenID(id), ColorReset)

	case strings.Contains(msg, "Bundle submission failed"):
		chunk := extractField(fields, "chunk")
		reason := extractField(fields, "error")
		return fmt.Sprintf("%s✗ Bundle #%s failed: %s%s", ColorRed, chunk, reason, ColorReset)

	case strings.Contains(msg, "Distribution aborted"):
		return fmt.Sprintf("%s⛔ Distribution aborted%s", ColorRed+ColorBold, ColorReset)

	case strings.Contains(msg, "Distribution completed"):
		bundles := extractField(fields, "bundles")
		return fmt.Sprintf("%s🎉 Distribution completed in %s bundles%s", ColorGreen+ColorBold, bundles, ColorReset)

	case strings.Contains(msg, "Gateway listening"):
		addr := extractField(fields, "addr")
		return fmt.Sprintf("%s🚀 Gateway listening on %s%s", ColorPurple, addr, ColorReset)

	default:
		return msg
	}
}

func extractField(fields []zapcore.Field, key string) string {
	for _, field := range fields {
		if field.Key != key {
			continue
		}
		switch field.Type {
		case zapcore.StringType:
			return field.String
		case zapcore.Int64Type, zapcore.Int32Type, zapcore.Uint64Type, zapcore.Uint32Type:
			return fmt.Sprintf("%d", field.Integer)
		case zapcore.ErrorType:
			if err, ok := field.Interface.(error); ok {
				return err.Error()
			}
		}
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}

func shortenID(id string) string {
	if len(id) > 16 {
		return id[:8] + "..." + id[len(id)-8:]
	}
	return id
}

// FieldFilterCore выводит в консоль только отформатированное сообщение, без полей.
// Структурированные поля остаются в файловом логе.
type FieldFilterCore struct {
	core   zapcore.Core
	fields []zapcore.Field
}

func (c *FieldFilterCore) Enabled(level zapcore.Level) bool {
	return c.core.Enabled(level)
}

func (c *FieldFilterCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &FieldFilterCore{core: c.core, fields: merged}
}

func (c *FieldFilterCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *FieldFilterCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := append(append([]zapcore.Field(nil), c.fields...), fields...)
	cleanEntry := entry
	cleanEntry.Message = FormatMessage(entry.Message, all...)
	// без файлового лога текст ошибки иначе теряется
	if cleanEntry.Message == entry.Message && entry.Level >= zapcore.WarnLevel {
		if reason := extractField(all, "error"); reason != "" {
			cleanEntry.Message += ": " + reason
		}
	}
	return c.core.Write(cleanEntry, nil)
}

func (c *FieldFilterCore) Sync() error {
	return c.core.Sync()
}
