/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

var (
	registryMu     sync.RWMutex
	registry       = map[string]*logrus.Logger{}
	baseLevel      = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleFormat  = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	fileLogEnabled = EnvDefaultBool("FILE_LOG_ENABLED", false)
	fileLogDir     = EnvDefaultString("FILE_LOG_DIR", "logs")
	fileMaxSizeMB  = 2
	fileBackups    = 5
)

// ConfigureFileLog enables per-logger files under dir. Each file rotates once it
// grows past maxSizeMB megabytes and at most backups compressed copies are kept.
func ConfigureFileLog(dir string, maxSizeMB, backups int) {
	registryMu.Lock()
	defer registryMu.Unlock()
	fileLogEnabled = true
	if dir != "" {
		fileLogDir = dir
	}
	if maxSizeMB > 0 {
		fileMaxSizeMB = maxSizeMB
	}
	if backups >= 0 {
		fileBackups = backups
	}
}

// ConfigureConsoleLogFormat switches console output between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleFormat = "json"
		return
	}
	consoleFormat = "text"
}

func ParseLogLevel(s string) logrus.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// ConfigureLogLevel sets the level of every registered logger and of loggers
// created afterwards.
func ConfigureLogLevel(level string) {
	lvl := ParseLogLevel(level)
	registryMu.Lock()
	baseLevel = lvl
	for _, l := range registry {
		l.SetLevel(lvl)
	}
	registryMu.Unlock()
	logrus.SetLevel(lvl)
}

// SetLoggerLevel changes a single named logger. It reports false when no logger
// with that name exists.
func SetLoggerLevel(name, level string) bool {
	registryMu.RLock()
	l, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return false
	}
	l.SetLevel(ParseLogLevel(level))
	return true
}

// GetLogger returns the registered logger for name, creating it on first use.
func GetLogger(name string) *logrus.Logger {
	registryMu.RLock()
	l, ok := registry[name]
	registryMu.RUnlock()
	if ok {
		return l
	}
	return NewLogger(name)
}

// NewLogger builds a named logger writing to stdout, plus rotating files when
// file logging is enabled, and registers it.
func NewLogger(name string) *logrus.Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[name]; ok {
		return l
	}

	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(baseLevel)
	l.SetReportCaller(true)
	if consoleFormat == "json" {
		l.SetFormatter(newJSONFormatter(name))
	} else {
		l.SetFormatter(&ConsoleFormatter{
			LoggerName: name,
			Colorize:   true,
			ShowTime:   !insideContainer(),
		})
	}
	if fileLogEnabled {
		if err := addFileHooks(l, name); err != nil {
			l.WithError(err).Warn("file logging disabled")
		}
	}
	registry[name] = l
	return l
}

// addFileHooks writes every entry as JSON to <name>.log and errors as text to
// <name>-error.log.
func addFileHooks(l *logrus.Logger, name string) error {
	if err := os.MkdirAll(fileLogDir, 0o755); err != nil {
		return err
	}
	all := newRotatingWriter(filepath.Join(fileLogDir, name+".log"), fileMaxSizeMB, fileBackups)
	errs := newRotatingWriter(filepath.Join(fileLogDir, name+"-error.log"), fileMaxSizeMB, fileBackups)

	l.AddHook(&writerHook{
		writer:    all,
		levels:    levelsUpTo(logrus.InfoLevel),
		formatter: newJSONFormatter(name),
	})
	l.AddHook(&writerHook{
		writer:    errs,
		levels:    levelsUpTo(logrus.ErrorLevel),
		formatter: &ConsoleFormatter{LoggerName: name, ShowTime: true},
	})
	return nil
}

func levelsUpTo(max logrus.Level) []logrus.Level {
	var out []logrus.Level
	for _, lvl := range logrus.AllLevels {
		if lvl <= max {
			out = append(out, lvl)
		}
	}
	return out
}

type writerHook struct {
	writer    io.Writer
	levels    []logrus.Level
	formatter logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level { return h.levels }

func (h *writerHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

func newJSONFormatter(name string) logrus.Formatter {
	return &namedJSONFormatter{
		name: name,
		inner: &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg:  "message",
				logrus.FieldKeyFunc: "function",
			},
		},
	}
}

type namedJSONFormatter struct {
	name  string
	inner *logrus.JSONFormatter
}

func (f *namedJSONFormatter) Format(e *logrus.Entry) ([]byte, error) {
	data := make(logrus.Fields, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data["logger"] = f.name
	clone := *e
	clone.Data = data
	return f.inner.Format(&clone)
}

// insideContainer detects Docker and Podman, where the runtime already stamps
// each line with a time.
func insideContainer() bool {
	for _, p := range []string{"/.dockerenv", "/run/.containerenv"} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
