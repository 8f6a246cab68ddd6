// Package logging holds the process-wide structured logger and helpers that
// keep bearer tokens and other secrets out of log output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"golang.org/x/term"
)

var (
	logger *slog.Logger

	// Patterns for detecting sensitive data
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)(password|secret|token|api_key|client_secret)[\s]*[:=][\s]*[^\s,]+`),
		regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`), // JWT
	}

	sensitiveKeys = map[string]bool{
		"authorization":     true,
		"token":             true,
		"access_token":      true,
		"refresh_token":     true,
		"password":          true,
		"secret":            true,
		"secret_id":         true,
		"client_secret":     true,
		"secret_access_key": true,
		"api_key":           true,
	}
)

func init() {
	level := slog.LevelInfo
	if os.Getenv("SHIPYARD_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	logger = New(level, "auto", os.Stderr)
}

// New builds a logger writing to w. Format is "json", "text" or "auto";
// auto picks text when w is an interactive terminal and JSON otherwise.
func New(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		if isTerminal(w) {
			handler = slog.NewTextHandler(w, opts)
		} else {
			handler = slog.NewJSONHandler(w, opts)
		}
	}
	return slog.New(handler)
}

// ParseLevel maps a config string to a slog level. Unknown values yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetLogger replaces the process-wide logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// GetLogger returns the process-wide logger.
func GetLogger() *slog.Logger {
	return logger
}

// SanitizeString masks tokens and secrets embedded in s.
func SanitizeString(s string) string {
	sanitized := s
	for _, pattern := range sensitivePatterns {
		sanitized = pattern.ReplaceAllStringFunc(sanitized, func(match string) string {
			if strings.HasPrefix(strings.ToLower(match), "bearer") {
				return "Bearer [REDACTED]"
			}
			if i := strings.IndexAny(match, ":="); i > 0 {
				sep := match[i : i+1]
				if sep == ":" {
					return match[:i] + ": [REDACTED]"
				}
				return match[:i] + "=[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return sanitized
}

// SanitizeMap returns a copy of m with sensitive keys redacted and string
// values passed through SanitizeString.
func SanitizeMap(m map[string]any) map[string]any {
	sanitized := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
		} else if s, ok := v.(string); ok {
			sanitized[k] = SanitizeString(s)
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}

// RedactToken keeps the last four characters of a token for display.
func RedactToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "(none)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

// Info logs an informational message
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}
