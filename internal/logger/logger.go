package logger

import (
	"os"
	"strings"

	"github.com/gookit/slog"
	"github.com/gookit/slog/handler"
)

// Logger 는 프로세스 전역에서 사용하는 최소 로거 인터페이스다.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Fields 는 구조화 로그를 위한 공통 필드 타입이다.
type Fields map[string]any

// Log 는 전역 로거 인스턴스다.
// InitFromEnv 가 호출되지 않더라도 info 레벨로 동작한다.
var Log Logger = NewLogger("info")

// InitFromEnv 는 envKey 에서 로그 레벨을 읽어 전역 로거를 초기화한다.
// 환경변수가 비어 있으면 fallback(보통 config.yaml 의 logging.level), 그것도 없으면 info 를 쓴다.
func InitFromEnv(envKey string, fallback ...string) {
	level := strings.ToLower(strings.TrimSpace(os.Getenv(envKey)))
	if level == "" && len(fallback) > 0 {
		level = strings.ToLower(strings.TrimSpace(fallback[0]))
	}
	if level == "" {
		level = "info"
	}
	Log = NewLogger(level)
}

// NewLogger 는 주어진 레벨로 gookit/slog 기반 로거를 생성한다.
func NewLogger(level string) Logger {
	logLevel := slog.LevelByName(level)

	var levels slog.Levels
	for _, lv := range slog.AllLevels {
		if lv <= logLevel {
			levels = append(levels, lv)
		}
	}

	h := handler.NewConsoleHandler(levels)
	// 기본 필드는 datetime/level/message 로 제한하고 나머지는 top-level Fields 로만 출력한다.
	formatter := slog.NewJSONFormatter(func(f *slog.JSONFormatter) {
		f.Fields = []string{
			slog.FieldKeyDatetime,
			slog.FieldKeyLevel,
			slog.FieldKeyMessage,
		}
		f.Aliases = slog.StringMap{
			slog.FieldKeyDatetime: "datetime",
			slog.FieldKeyLevel:    "level",
			slog.FieldKeyMessage:  "message",
		}
		f.TimeFormat = "2006-01-02T15:04:05"
	})
	h.SetFormatter(formatter)

	return slog.NewWithHandlers(h)
}

// withServiceName 은 service_name 필드를 SERVICE_NAME 환경변수 기준으로 보강한다.
func withServiceName(fields Fields) Fields {
	if fields == nil {
		fields = Fields{}
	}
	if _, ok := fields["service_name"]; !ok {
		if sn := os.Getenv("SERVICE_NAME"); sn != "" {
			fields["service_name"] = sn
		}
	}
	return fields
}

func withFields(fields Fields) (*slog.Record, bool) {
	lg, ok := Log.(*slog.Logger)
	if !ok {
		return nil, false
	}
	return lg.WithFields(slog.M(withServiceName(fields))), true
}

// InfoWithFields 는 request_id, item_id, queue 등 구조화 필드를 포함한 로그를 출력한다.
func InfoWithFields(msg string, fields Fields) {
	if r, ok := withFields(fields); ok {
		r.Info(msg)
		return
	}
	Log.Info(msg)
}

func DebugWithFields(msg string, fields Fields) {
	if r, ok := withFields(fields); ok {
		r.Debug(msg)
		return
	}
	Log.Debug(msg)
}

func WarnWithFields(msg string, fields Fields) {
	if r, ok := withFields(fields); ok {
		r.Warn(msg)
		return
	}
	Log.Warn(msg)
}

func ErrorWithFields(msg string, fields Fields) {
	if r, ok := withFields(fields); ok {
		r.Error(msg)
		return
	}
	Log.Error(msg)
}
