// Package log provides the leveled logger used across weave. Output goes to
// the terminal, a rotated file, or both.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	writer io.Writer

	Name  string
	Level LogLevel

	TimeFormat string
	File       string
	NoColor    bool
	JSON       bool
	NoTerminal bool
	Rotation   *Rotation
}

type Rotation struct {
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

// New creates a logger writing to stdout and, when file is non-empty, to a
// size-rotated log file.
func New(name string, level LogLevel, file string) *Logger {
	l := &Logger{
		Name:  name,
		Level: level,
		File:  file,

		TimeFormat: "2006-01-02 15:04:05",
		Rotation: &Rotation{
			MaxSize:    128,
			MaxBackups: 5,
			MaxAge:     16,
		},
	}

	l.setupWriter()
	return l
}

// Discard returns a logger that drops everything; the default for library
// consumers that do not opt into logging.
func Discard() *Logger {
	return &Logger{writer: io.Discard, Level: Fatal, NoTerminal: true}
}

func (l *Logger) setupWriter() {
	var writers []io.Writer

	if !l.NoTerminal {
		writers = append(writers, os.Stdout)
	}

	if l.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.Rotation.MaxSize,
			MaxBackups: l.Rotation.MaxBackups,
			MaxAge:     l.Rotation.MaxAge,
			Compress:   l.Rotation.Compress,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	l.writer = io.MultiWriter(writers...)
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.Level {
		return
	}

	timestamp := time.Now().Format(l.TimeFormat)
	formatted := fmt.Sprintf(msg, args...)

	if l.JSON {
		e := entry{
			Timestamp: timestamp,
			Level:     level.String(),
			Component: l.Name,
			Message:   formatted,
		}
		encoded, _ := json.Marshal(e)
		fmt.Fprintf(l.writer, "%s\n", encoded)
	} else {
		prefix := fmt.Sprintf("[%s] %-5s", timestamp, level)
		if l.Name != "" {
			prefix = fmt.Sprintf("%s [%s]", prefix, l.Name)
		}

		if !l.NoTerminal && !l.NoColor {
			fmt.Fprintf(l.writer, "%s%s %s\033[0m\n", Color(level), prefix, formatted)
		} else {
			fmt.Fprintf(l.writer, "%s %s\n", prefix, formatted)
		}
	}

	if level == Fatal {
		os.Exit(1)
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(Debug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(Info, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(Warn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(Error, msg, args...) }
func (l *Logger) Fatal(msg string, args ...any) { l.log(Fatal, msg, args...) }

// Named returns a child logger sharing the writer under a nested name.
func (l *Logger) Named(name string) *Logger {
	child := *l
	if l.Name != "" {
		child.Name = fmt.Sprintf("%s/%s", l.Name, name)
	} else {
		child.Name = name
	}
	return &child
}
