// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging_test

import (
	"io"
	"log"
	"regexp"
	"strings"
	"testing"

	"github.com/evolution-gaming/vid2slides/internal/logging"
)

func TestUnformattedLogging(t *testing.T) {
	tests := map[string]struct {
		given   string
		want    *regexp.Regexp
		logFunc func(...interface{})
		logger  *log.Logger
	}{
		"Simple Info": {
			given:   "Processing video: talk.mp4",
			want:    regexp.MustCompile("INFO: .*Processing video: talk.mp4"),
			logFunc: logging.Info,
			logger:  logging.InfoLogger,
		},
		"Simple Debug": {
			given:   "frame 7 ratio 0.13",
			want:    regexp.MustCompile("DEBUG: .*frame 7 ratio 0.13"),
			logFunc: logging.Debug,
			logger:  logging.DebugLogger,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out strings.Builder
			tc.logger.SetOutput(&out)
			defer tc.logger.SetOutput(io.Discard)
			tc.logFunc(tc.given)
			got := out.String()
			if !tc.want.MatchString(got) {
				t.Errorf("Log message not found (-want/+got)\n\t-%s\n\t+%s", tc.want.String(), got)
			}
		})
	}
}

func TestFormattedLogging(t *testing.T) {
	tests := map[string]struct {
		given1  string
		given2  string
		want    *regexp.Regexp
		format  string
		logFunc func(string, ...interface{})
		logger  *log.Logger
	}{
		"Complex Info": {
			given1:  "000_0.02.png",
			given2:  "out/talk",
			want:    regexp.MustCompile("INFO: .*Saving 000_0.02.png -- out/talk"),
			format:  "Saving %s -- %s",
			logFunc: logging.Infof,
			logger:  logging.InfoLogger,
		},
		"Complex Debug": {
			given1:  "debug message 1",
			given2:  "debug message 2",
			format:  "%s -- %s",
			want:    regexp.MustCompile("DEBUG: .*debug message 1 -- debug message 2"),
			logFunc: logging.Debugf,
			logger:  logging.DebugLogger,
		},
		"Error": {
			given1:  "talk.mp4",
			given2:  "unable to open",
			format:  "%s: %s",
			want:    regexp.MustCompile("ERROR: .*talk.mp4: unable to open"),
			logFunc: logging.Errorf,
			logger:  logging.ErrorLogger,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out strings.Builder
			prev := tc.logger.Writer()
			tc.logger.SetOutput(&out)
			defer tc.logger.SetOutput(prev)
			tc.logFunc(tc.format, tc.given1, tc.given2)
			got := out.String()
			if !tc.want.MatchString(got) {
				t.Errorf("Log message not found (-want/+got)\n\t-%s\n\t+%s", tc.want.String(), got)
			}
		})
	}
}

func TestDebugEnabled(t *testing.T) {
	prev := logging.DebugLogger.Writer()
	defer logging.DebugLogger.SetOutput(prev)

	logging.DebugLogger.SetOutput(io.Discard)
	if logging.DebugEnabled() {
		t.Error("DebugEnabled() should be false for discarded output")
	}
	logging.EnableDebugLogger()
	if !logging.DebugEnabled() {
		t.Error("DebugEnabled() should be true after EnableDebugLogger()")
	}
}
