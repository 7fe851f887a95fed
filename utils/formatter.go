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
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05.000"

var (
	timeColor     = color.New(color.FgGreen)
	locationColor = color.New(color.FgCyan)
	levelColors   = map[logrus.Level]*color.Color{
		logrus.TraceLevel: color.New(color.FgCyan),
		logrus.DebugLevel: color.New(color.FgBlue, color.Bold),
		logrus.InfoLevel:  color.New(color.Bold),
		logrus.WarnLevel:  color.New(color.FgYellow, color.Bold),
		logrus.ErrorLevel: color.New(color.FgRed, color.Bold),
		logrus.FatalLevel: color.New(color.BgRed, color.FgWhite, color.Bold),
		logrus.PanicLevel: color.New(color.BgRed, color.FgWhite, color.Bold),
	}
)

// ConsoleFormatter renders entries as
//
//	2006-01-02 15:04:05.000 | INFO     | name:function:line - message key=value
type ConsoleFormatter struct {
	LoggerName string
	Colorize   bool
	ShowTime   bool
}

func (f *ConsoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	if f.ShowTime {
		b.WriteString(f.paint(timeColor, e.Time.Format(timestampFormat)))
		b.WriteString(" | ")
	}
	lvl := fmt.Sprintf("%-8s", strings.ToUpper(e.Level.String()))
	b.WriteString(f.paint(levelColors[e.Level], lvl))
	b.WriteString(" | ")
	b.WriteString(f.paint(locationColor, f.location(e)))
	b.WriteString(" - ")
	b.WriteString(f.paint(levelColors[e.Level], e.Message))

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *ConsoleFormatter) location(e *logrus.Entry) string {
	if e.Caller == nil {
		return f.LoggerName
	}
	fn := e.Caller.Function
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	name := f.LoggerName
	if name == "" {
		name = filepath.Base(e.Caller.File)
	}
	return fmt.Sprintf("%s:%s:%d", name, fn, e.Caller.Line)
}

func (f *ConsoleFormatter) paint(c *color.Color, s string) string {
	if !f.Colorize || c == nil {
		return s
	}
	return c.Sprint(s)
}
