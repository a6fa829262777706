package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Logger handles leveled logging with optional file output
type Logger struct {
	Verbose bool
	writer  io.Writer
	errOut  io.Writer
	color   bool
	mu      sync.Mutex
	fileLog *os.File
	hasBar  bool
}

// New creates a Logger writing to stdout and stderr.
func New(verbose bool) *Logger {
	l := NewWithWriter(verbose, os.Stdout, os.Stderr)
	l.color = IsTerminal(os.Stdout)
	return l
}

// NewWithWriter creates an uncolored Logger writing to the given streams.
func NewWithWriter(verbose bool, out, errOut io.Writer) *Logger {
	return &Logger{
		Verbose: verbose,
		writer:  out,
		errOut:  errOut,
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Color reports whether console output is styled.
func (l *Logger) Color() bool {
	return l.color
}

// Writer returns the console output stream.
func (l *Logger) Writer() io.Writer {
	return l.writer
}

// SetFileLog enables logging to a file
func (l *Logger) SetFileLog(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.fileLog = f
	return nil
}

// SetProgressBar indicates that a progress bar is active
func (l *Logger) SetProgressBar(active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hasBar = active
}

// Close closes the log file if open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog != nil {
		err := l.fileLog.Close()
		l.fileLog = nil
		return err
	}
	return nil
}

// Info logs informational messages
func (l *Logger) Info(format string, args ...any) {
	l.log("INFO", format, args...)
}

// Debug logs detailed messages only in verbose mode
func (l *Logger) Debug(format string, args ...any) {
	if l.Verbose {
		l.log("DEBUG", format, args...)
	} else {
		// file log always gets debug output
		l.logToFile("DEBUG", format, args...)
	}
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...any) {
	l.log("WARN", format, args...)
}

// Error logs error messages to stderr
func (l *Logger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(l.errOut, l.prefix("ERROR")+msg)

	if l.fileLog != nil {
		l.fileLog.WriteString("[ERROR] " + msg + "\n")
	}
}

func (l *Logger) prefix(level string) string {
	if level == "INFO" {
		return ""
	}
	tag := "[" + level + "] "
	if !l.color {
		return tag
	}
	switch level {
	case "DEBUG":
		return debugStyle.Render(tag)
	case "WARN":
		return warnStyle.Render(tag)
	case "ERROR":
		return errorStyle.Render(tag)
	}
	return tag
}

func (l *Logger) log(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	// Hold console output while a progress bar owns the line
	if l.Verbose || !l.hasBar {
		fmt.Fprintln(l.writer, l.prefix(level)+msg)
	}

	if l.fileLog != nil {
		if level == "INFO" {
			l.fileLog.WriteString(msg + "\n")
		} else {
			l.fileLog.WriteString("[" + level + "] " + msg + "\n")
		}
	}
}

func (l *Logger) logToFile(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog != nil {
		msg := fmt.Sprintf("["+level+"] "+format+"\n", args...)
		l.fileLog.WriteString(msg)
	}
}
