// internal/logger/logger.go
package logger

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Параметры ротации файлового лога
const (
	maxSizeMB  = 100
	maxBackups = 3
	maxAgeDays = 7
)

// New создаёт логгер: цветная консоль и, если задан logFile, JSON-файл с ротацией.
func New(debug bool, logFile string) (*zap.Logger, error) {
	return build(debug, zapcore.Lock(os.Stdout), logFile)
}

func build(debug bool, console zapcore.WriteSyncer, logFile string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cores := []zapcore.Core{
		&FieldFilterCore{core: zapcore.NewCore(PrettyEncoder(), console, level)},
	}

	if logFile != "" {
		logRotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}

		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(logRotator),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// WithOperation создает логгер для конкретной операции с correlation_id.
func WithOperation(logger *zap.Logger, operation string) (*zap.Logger, string) {
	id := uuid.New().String()
	return logger.With(
		zap.String("operation", operation),
		zap.String("correlation_id", id),
		zap.Time("start_time", time.Now().UTC()),
	), id
}

// Sync сбрасывает буферы, игнорируя ошибки sync для терминала.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
