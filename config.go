// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application configuration structures.

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/evolution-gaming/vid2slides/internal/bgmodel"
	"github.com/evolution-gaming/vid2slides/internal/capture"
	"github.com/evolution-gaming/vid2slides/internal/detect"
	"github.com/evolution-gaming/vid2slides/internal/logging"
	"github.com/evolution-gaming/vid2slides/internal/motion"
	"github.com/evolution-gaming/vid2slides/internal/tools"
	"github.com/evolution-gaming/vid2slides/internal/video"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")

	defaultReportFile   = "report.csv"
	defaultOutputDir    = "./output"
	defaultSampleRate   = 5.0
	defaultVarThreshold = 16.0
	defaultMinPercent   = 0.2
	defaultMaxPercent   = 0.6
	defaultResizeWidth  = 600
	// History and warm-up are derived from the sample rate.
	historySeconds = 6.0
	warmupSeconds  = 1.0
)

// Config represent application configuration.
type Config struct {
	FfmpegPath         ConfigVal[string]  `json:"ffmpeg_path,omitempty"`
	FfprobePath        ConfigVal[string]  `json:"ffprobe_path,omitempty"`
	DecodeMode         ConfigVal[string]  `json:"decode_mode,omitempty"`
	FfmpegSeekTemplate ConfigVal[string]  `json:"ffmpeg_seek_template,omitempty"`
	SampleRate         ConfigVal[float64] `json:"sample_rate,omitempty"`
	WarmupFrames       ConfigVal[int]     `json:"warmup_frames,omitempty"`
	History            ConfigVal[int]     `json:"history,omitempty"`
	VarThreshold       ConfigVal[float64] `json:"var_threshold,omitempty"`
	DetectShadows      ConfigVal[bool]    `json:"detect_shadows,omitempty"`
	MinPercent         ConfigVal[float64] `json:"min_percent,omitempty"`
	MaxPercent         ConfigVal[float64] `json:"max_percent,omitempty"`
	ResizeWidth        ConfigVal[int]     `json:"resize_width,omitempty"`
	ImageFormat        ConfigVal[string]  `json:"image_format,omitempty"`
	OutputDir          ConfigVal[string]  `json:"output_dir,omitempty"`
	ReportFileName     ConfigVal[string]  `json:"report_file_name,omitempty"`
}

// Verify will check that configuration is valid.
//
// Will check that configuration option values are sensible.
func (c *Config) Verify() error {
	msgs := []string{}
	if !fileExists(c.FfmpegPath.Value()) {
		msgs = append(msgs, "invalid ffmpeg path")
	}
	if !fileExists(c.FfprobePath.Value()) {
		msgs = append(msgs, "invalid ffprobe path")
	}
	switch c.DecodeMode.Value() {
	case tools.DecodeSeek:
		if strings.TrimSpace(c.FfmpegSeekTemplate.Value()) == "" {
			msgs = append(msgs, "empty ffmpeg seek template")
		}
	case tools.DecodeStream:
	default:
		msgs = append(msgs, fmt.Sprintf("unknown decode mode %q", c.DecodeMode.Value()))
	}
	if !(c.SampleRate.Value() > 0) {
		msgs = append(msgs, "sample rate should be positive")
	}
	if c.WarmupFrames.Value() < 0 {
		msgs = append(msgs, "warm-up frames should not be negative")
	}
	if c.History.Value() < 1 {
		msgs = append(msgs, "history should be at least 1")
	}
	if !(c.VarThreshold.Value() > 0) {
		msgs = append(msgs, "variance threshold should be positive")
	}
	if !(c.MinPercent.Value() >= 0 && c.MinPercent.Value() < c.MaxPercent.Value()) {
		msgs = append(msgs, "thresholds should satisfy 0 <= min_percent < max_percent")
	}
	if c.ResizeWidth.Value() < 0 {
		msgs = append(msgs, "resize width should not be negative")
	}
	if err := capture.CheckFormat(c.ImageFormat.Value()); err != nil {
		msgs = append(msgs, err.Error())
	}
	if c.OutputDir.Value() == "" {
		msgs = append(msgs, "empty output dir")
	}
	if c.ReportFileName.Value() == "" {
		msgs = append(msgs, "empty report file name")
	}

	if len(msgs) != 0 {
		return fmt.Errorf("%s: %w", strings.Join(msgs, ", "), ErrInvalidConfig)
	}
	return nil
}

// OverrideFrom will overwrite fields from given Config object.
//
// Only fields that are "not-nil" (as per IsNil() method) in src Config object will be
// overwritten.
func (c *Config) OverrideFrom(src Config) {
	// TODO: some way to iterate over fields and set them (reflection?) otherwise need to
	// remember to update this method when new  fields are added.
	if !src.FfmpegPath.IsNil() {
		c.FfmpegPath = src.FfmpegPath
	}
	if !src.FfprobePath.IsNil() {
		c.FfprobePath = src.FfprobePath
	}
	if !src.DecodeMode.IsNil() {
		c.DecodeMode = src.DecodeMode
	}
	if !src.FfmpegSeekTemplate.IsNil() {
		c.FfmpegSeekTemplate = src.FfmpegSeekTemplate
	}
	if !src.SampleRate.IsNil() {
		c.SampleRate = src.SampleRate
		// Rate driven defaults follow the new rate unless given explicitly.
		if src.WarmupFrames.IsNil() {
			c.WarmupFrames = NewConfigVal(warmupFor(src.SampleRate.Value()))
		}
		if src.History.IsNil() {
			c.History = NewConfigVal(historyFor(src.SampleRate.Value()))
		}
	}
	if !src.WarmupFrames.IsNil() {
		c.WarmupFrames = src.WarmupFrames
	}
	if !src.History.IsNil() {
		c.History = src.History
	}
	if !src.VarThreshold.IsNil() {
		c.VarThreshold = src.VarThreshold
	}
	if !src.DetectShadows.IsNil() {
		c.DetectShadows = src.DetectShadows
	}
	if !src.MinPercent.IsNil() {
		c.MinPercent = src.MinPercent
	}
	if !src.MaxPercent.IsNil() {
		c.MaxPercent = src.MaxPercent
	}
	if !src.ResizeWidth.IsNil() {
		c.ResizeWidth = src.ResizeWidth
	}
	if !src.ImageFormat.IsNil() {
		c.ImageFormat = src.ImageFormat
	}
	if !src.OutputDir.IsNil() {
		c.OutputDir = src.OutputDir
	}
	if !src.ReportFileName.IsNil() {
		c.ReportFileName = src.ReportFileName
	}
}

// warmupFor returns default warm-up frame count for sample rate.
func warmupFor(rate float64) int {
	return int(math.Round(rate * warmupSeconds))
}

// historyFor returns default background model history for sample rate.
func historyFor(rate float64) int {
	return int(math.Round(rate * historySeconds))
}

// thresholds returns motion thresholds from configuration.
func (c *Config) thresholds() motion.Thresholds {
	return motion.Thresholds{
		Low:    c.MinPercent.Value(),
		High:   c.MaxPercent.Value(),
		Warmup: c.WarmupFrames.Value(),
	}
}

// detectConfig returns per-video detection configuration.
func (c *Config) detectConfig() detect.Config {
	p := bgmodel.DefaultParams()
	p.History = c.History.Value()
	p.VarThreshold = c.VarThreshold.Value()
	p.DetectShadows = c.DetectShadows.Value()
	return detect.Config{
		ResizeWidth: c.ResizeWidth.Value(),
		Model:       p,
		Thresholds:  c.thresholds(),
	}
}

// decoderConfig returns ffmpeg decoder configuration.
func (c *Config) decoderConfig() tools.DecoderConfig {
	return tools.DecoderConfig{
		FfmpegPath:   c.FfmpegPath.Value(),
		Mode:         c.DecodeMode.Value(),
		SeekTemplate: c.FfmpegSeekTemplate.Value(),
		Rate:         c.SampleRate.Value(),
	}
}

// metadataExtractor returns ffprobe based video metadata extractor.
func (c *Config) metadataExtractor() video.MetadataExtractor {
	return tools.Ffprobe{Path: c.FfprobePath.Value()}
}

// loadDefaultConfig will create a default configuration.
//
// For some configuration options a default value will be specified, for others an
// auto-detection mechanism will populate option values. Tools that cannot be
// located are left empty and reported by Verify().
func loadDefaultConfig() Config {
	ffmpeg, err := tools.FfmpegPath()
	if err != nil {
		logging.Debugf("DefaultConfig: %s", err)
	}
	ffprobe, err := tools.FfprobePath()
	if err != nil {
		logging.Debugf("DefaultConfig: %s", err)
	}

	return Config{
		FfmpegPath:         NewConfigVal(ffmpeg),
		FfprobePath:        NewConfigVal(ffprobe),
		DecodeMode:         NewConfigVal(tools.DecodeStream),
		FfmpegSeekTemplate: NewConfigVal(tools.DefaultFfmpegSeekTemplate),
		SampleRate:         NewConfigVal(defaultSampleRate),
		WarmupFrames:       NewConfigVal(warmupFor(defaultSampleRate)),
		History:            NewConfigVal(historyFor(defaultSampleRate)),
		VarThreshold:       NewConfigVal(defaultVarThreshold),
		DetectShadows:      NewConfigVal(false),
		MinPercent:         NewConfigVal(defaultMinPercent),
		MaxPercent:         NewConfigVal(defaultMaxPercent),
		ResizeWidth:        NewConfigVal(defaultResizeWidth),
		ImageFormat:        NewConfigVal(capture.FormatPNG),
		OutputDir:          NewConfigVal(defaultOutputDir),
		ReportFileName:     NewConfigVal(defaultReportFile),
	}
}

// loadConfigFromFile will load configuration from file.
//
// Only JSON is supported at this point.
func loadConfigFromFile(f string) (cfg Config, err error) {
	fileExt := strings.ToLower(filepath.Ext(f))
	switch fileExt {
	case ".json":
		return loadJSON(f)
	default:
		return cfg, fmt.Errorf("unknown config format: %s", fileExt)
	}
}

// LoadConfig will return merged default config and config from file. This is main
// function to use for config loading. Configuration file is optional e.g. can be "".
func LoadConfig(configFile string) (cfg Config, err error) {
	cfg = loadDefaultConfig()

	if configFile != "" {
		c, err := loadConfigFromFile(configFile)
		if err != nil {
			return cfg, err
		}
		// Configuration file can specify full set or partial set of configuration
		// options, the rest will remain as per default config.
		cfg.OverrideFrom(c)
	}

	return cfg, nil
}

func loadJSON(f string) (cfg Config, err error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return cfg, fmt.Errorf("config from JSON file: %w", err)
	}

	if len(b) == 0 {
		return cfg, fmt.Errorf("JSON file is empty: %w", ErrInvalidConfig)
	}

	if err = json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config from JSON document: %w", err)
	}

	return cfg, nil
}

// In order to support Config overriding we have to implement wrapper type for Config
// fields. Otherwise it is hard to distinguish skipped fields, for instance when loading
// partial configuration from file: in that case it would be impossible to  distinguish
// between say numeric fields zero value and zero explicitly specified in
// configuration file.

// NewConfigVal is constructor for ConfigVal. It will wrap its argument into ConfigVal.
func NewConfigVal[T any](v T) ConfigVal[T] {
	return ConfigVal[T]{v: &v}
}

// ConfigVal is a wrapper for Config field value.
type ConfigVal[T any] struct {
	// Stored as pointer, nil means the option was not specified.
	v *T
}

// Value will return wrapped value.
//
// In case field has not been defined e.g. is zero value, then appropriate zero value of
// wrapped type will be returned.
func (o *ConfigVal[T]) Value() T {
	if o.IsNil() {
		var v T
		return v
	}
	return *o.v
}

// IsNil check if wrapped value is nil.
func (o *ConfigVal[T]) IsNil() bool {
	return o.v == nil
}

// UnmarshalJSON implements json.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalJSON(b []byte) error {
	var val T
	err := json.Unmarshal(b, &val)
	if err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalJSON implements json.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value())
}

func CreateDumpConfCommand() *DumpConfApp {
	longHelp := `Command "dump-conf" will print actual application configuration taking into account
configuration file provided and default configuration values.

Examples:

	vid2slides dump-conf
	vid2slides dump-conf -conf path/to/config.json`

	app := &DumpConfApp{
		fs:  flag.NewFlagSet("dump-conf", flag.ContinueOnError),
		gf:  globalFlags{},
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Make sure App implements Commander interface.
var _ Commander = (*DumpConfApp)(nil)

// DumpConfApp is subcommand application context that implements Commander interface.
type DumpConfApp struct {
	out io.Writer
	fs  *flag.FlagSet
	gf  globalFlags
}

// Name implements Commander interface.
func (d *DumpConfApp) Name() string {
	return d.fs.Name()
}

// Help implements Commander interface.
func (d *DumpConfApp) Help() {
	d.fs.Usage()
}

// Run is main entry point into DumpConfApp execution.
func (d *DumpConfApp) Run(args []string) error {
	if err := d.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}
	d.gf.Apply()

	cfg, err := LoadConfig(d.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	enc := json.NewEncoder(d.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	// Also, report if configuration is valid.
	if err := cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	return nil
}
