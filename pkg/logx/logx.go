// Package logx provides component-tagged logging with context-aware, domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Logger struct {
	component string
	logger    *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

type ctxKey string

const (
	componentKey ctxKey = "component"
	sessionKey   ctxKey = "session_id"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	outputMu sync.RWMutex
	output   io.Writer = os.Stderr
)

func init() { //nolint:gochecknoinits // env-driven debug switches
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = parseDomains(strings.Split(domains, ","))
	}
}

func parseDomains(domains []string) map[string]bool {
	if len(domains) == 0 {
		return nil
	}
	m := make(map[string]bool, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			m[d] = true
		}
	}
	return m
}

// SetOutput redirects every logger created afterwards, and the package-level helpers.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
	defaultLogger = &Logger{component: "system", logger: log.New(w, "", 0)}
}

func currentOutput() io.Writer {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output
}

func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(currentOutput(), "", 0),
	}
}

// SetDebug enables or disables debug logging globally.
func SetDebug(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Enabled = enabled
}

// SetDebugDomains restricts debug output to the given domains; empty enables all.
func SetDebugDomains(domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Domains = parseDomains(domains)
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// WithComponent stores the component name used by the context-based helpers.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithSessionID tags the context with a session id so debug lines can be correlated per conversation.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// SessionID returns the session id stored in ctx, or "".
func SessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(sessionKey).(string); ok {
		return id
	}
	return ""
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format(timestampFormat)
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugState logs a state transition.
func (l *Logger) DebugState(action, state string, extra ...string) {
	l.Debug("State %s: %s%s", action, state, extraSuffix(extra))
}

func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a logger sharing the same output under a different component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		component: component,
		logger:    l.logger,
	}
}

// Debug logs a debug message with context and domain filtering.
//
//	logx.Debug(ctx, "orchestrator", "classified as %s", intent)
//
// Environment variable control:
//
//	DEBUG=1                                # all domains
//	DEBUG=1 DEBUG_DOMAINS=orchestrator,mcp # selected domains
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}

	component := "unknown"
	if ctx != nil {
		if c, ok := ctx.Value(componentKey).(string); ok {
			component = c
		}
	}

	message := fmt.Sprintf(format, args...)
	if sid := SessionID(ctx); sid != "" {
		message = fmt.Sprintf("[%s] (session=%s) %s", domain, sid, message)
	} else {
		message = fmt.Sprintf("[%s] %s", domain, message)
	}
	NewLogger(component).log(LevelDebug, "%s", message)
}

// DebugState logs state transition information with context and domain.
func DebugState(ctx context.Context, domain, action, state string, extra ...string) {
	Debug(ctx, domain, "State %s: %s%s", action, state, extraSuffix(extra))
}

// DebugFlow logs workflow step information with context and domain.
func DebugFlow(ctx context.Context, domain, step, status string, extra ...string) {
	Debug(ctx, domain, "Flow %s: %s%s", step, status, extraSuffix(extra))
}

func extraSuffix(extra []string) string {
	if len(extra) == 0 {
		return ""
	}
	return " - " + extra[0]
}

var defaultLogger = NewLogger("system")

func system() *Logger {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return defaultLogger
}

func Infof(format string, args ...any) {
	system().Info(format, args...)
}

func Warnf(format string, args ...any) {
	system().Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	system().Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logx.Wrap(err, "open session store") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	system().Error("%s", wrappedErr.Error())
	return wrappedErr
}
