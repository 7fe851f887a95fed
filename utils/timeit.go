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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeIt logs how long the surrounding call took. Use it with defer:
//
//	defer utils.TimeIt(log, "ListUsers", page)()
func TimeIt(l *logrus.Logger, name string, args ...any) func() {
	start := time.Now()
	return func() {
		ms := float64(time.Since(start).Microseconds()) / 1000
		msg := fmt.Sprintf("Func: %s with args: %v took: %.3f ms", name, args, ms)
		if l == nil {
			fmt.Println(msg)
			return
		}
		l.Warn(msg)
	}
}

// IgnoreError runs fn and logs, then drops, any error or panic it produces.
func IgnoreError(l *logrus.Logger, fn func() error) {
	defer func() {
		if r := recover(); r != nil && l != nil {
			l.WithField("panic", r).Error("recovered from panic")
		}
	}()
	if err := fn(); err != nil && l != nil {
		l.WithError(err).Error("ignored error")
	}
}
