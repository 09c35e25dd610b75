/*
 * Copyright 2024 Axibase Corporation
 *
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

package atsd

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures the logger built by NewLogger.
type LogConfig struct {
	// Level is one of debug, info, warn or error. Defaults to info.
	Level string `json:"level" yaml:"level"`
	// Filename enables logging to a rotated file instead of stderr.
	Filename string `json:"filename" yaml:"filename"`
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int `json:"maxSizeMB" yaml:"maxSizeMB"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`
	// MaxAgeDays is the number of days rotated files are kept.
	MaxAgeDays int `json:"maxAgeDays" yaml:"maxAgeDays"`
	// Compress gzips rotated files.
	Compress bool `json:"compress" yaml:"compress"`
}

// NewLogger returns a logfmt Logger for the provided logging configuration.
func NewLogger(cfg *LogConfig) log.Logger {
	if cfg == nil {
		cfg = &LogConfig{}
	}

	var wr io.Writer = os.Stderr
	if cfg.Filename != "" {
		wr = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(wr))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"lib", "atsd",
		"caller", log.DefaultCaller,
	)
	return level.NewFilter(logger, levelOption(cfg.Level))
}

func levelOption(name string) level.Option {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

func (c *Config) logger() log.Logger {
	switch {
	case c.Logger != nil:
		return c.Logger
	case c.Log != nil:
		return NewLogger(c.Log)
	default:
		return log.NewNopLogger()
	}
}
