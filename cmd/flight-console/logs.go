package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogManager manages the log panel and message history. It also serves as
// the slog handler of the library packages, so their records land in the
// panel instead of on the terminal.
type LogManager struct {
	textView *tview.TextView

	// messages stores recent log messages
	messages []LogMessage

	maxMessages int
	minLevel    slog.Level

	// mu protects concurrent access to messages
	mu sync.Mutex

	autoScroll bool
}

// LogMessage represents a single log entry
type LogMessage struct {
	Time    time.Time
	Level   LogLevel
	Message string
}

// NewLogManager creates a new log manager
func NewLogManager(maxMessages int, minLevel slog.Level) *LogManager {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(maxMessages)

	textView.SetBorder(true).SetTitle(" Logs ")

	return &LogManager{
		textView:    textView,
		messages:    make([]LogMessage, 0, maxMessages),
		maxMessages: maxMessages,
		minLevel:    minLevel,
		autoScroll:  true,
	}
}

// GetView returns the tview component
func (lm *LogManager) GetView() tview.Primitive {
	return lm.textView
}

// AddLog adds a log message with the specified level
func (lm *LogManager) AddLog(level LogLevel, format string, args ...interface{}) {
	lm.add(LogMessage{Time: time.Now(), Level: level, Message: fmt.Sprintf(format, args...)})
}

func (lm *LogManager) add(msg LogMessage) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.messages = append(lm.messages, msg)
	if len(lm.messages) > lm.maxMessages {
		lm.messages = lm.messages[len(lm.messages)-lm.maxMessages:]
	}
	lm.refresh()
}

func (lm *LogManager) Debug(format string, args ...interface{}) {
	lm.AddLog(LogLevelDebug, format, args...)
}

func (lm *LogManager) Info(format string, args ...interface{}) {
	lm.AddLog(LogLevelInfo, format, args...)
}

func (lm *LogManager) Warn(format string, args ...interface{}) {
	lm.AddLog(LogLevelWarn, format, args...)
}

func (lm *LogManager) Error(format string, args ...interface{}) {
	lm.AddLog(LogLevelError, format, args...)
}

// Messages returns a copy of the retained messages
func (lm *LogManager) Messages() []LogMessage {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return append([]LogMessage(nil), lm.messages...)
}

// refresh updates the text view with current messages
func (lm *LogManager) refresh() {
	lm.textView.Clear()

	for _, msg := range lm.messages {
		color := colorForLevel(msg.Level)
		levelStr := fmt.Sprintf("[%s]%-5s[-]", color, msg.Level)
		timeStr := msg.Time.Format("15:04:05")

		// Format: [HH:MM:SS] LEVEL Message
		fmt.Fprintf(lm.textView, "[gray]%s[-] %s %s\n", timeStr, levelStr, tview.Escape(msg.Message))
	}

	if lm.autoScroll {
		lm.textView.ScrollToEnd()
	}
}

func colorForLevel(level LogLevel) string {
	switch level {
	case LogLevelDebug:
		return "gray"
	case LogLevelWarn:
		return "yellow"
	case LogLevelError:
		return "red"
	}
	return "white"
}

// Clear removes all log messages
func (lm *LogManager) Clear() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.messages = make([]LogMessage, 0, lm.maxMessages)
	lm.textView.Clear()
}

// Handler returns a slog handler writing into the panel
func (lm *LogManager) Handler() slog.Handler {
	return &panelHandler{lm: lm}
}

type panelHandler struct {
	lm    *LogManager
	attrs []slog.Attr
	group string
}

func (h *panelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lm.minLevel
}

func (h *panelHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Resolve())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", h.qualify(a.Key), a.Value.Resolve())
		return true
	})

	h.lm.add(LogMessage{Time: r.Time, Level: levelOf(r.Level), Message: b.String()})
	return nil
}

func (h *panelHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// WithAttrs qualifies keys with the groups opened so far
func (h *panelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	all := append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		all = append(all, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return &panelHandler{lm: h.lm, attrs: all, group: h.group}
}

func (h *panelHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &panelHandler{lm: h.lm, attrs: h.attrs, group: h.qualify(name)}
}

func levelOf(l slog.Level) LogLevel {
	switch {
	case l >= slog.LevelError:
		return LogLevelError
	case l >= slog.LevelWarn:
		return LogLevelWarn
	case l >= slog.LevelInfo:
		return LogLevelInfo
	}
	return LogLevelDebug
}
