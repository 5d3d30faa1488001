// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package detect runs slide change detection over one video.
//
// Every sampled frame is downscaled to a working frame, fed into a fresh
// background model, and its change ratio is handed to the motion machine. When
// the machine fires, the original full resolution frame goes to the sink.
package detect

import (
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/evolution-gaming/vid2slides/internal/bgmodel"
	"github.com/evolution-gaming/vid2slides/internal/capture"
	"github.com/evolution-gaming/vid2slides/internal/logging"
	"github.com/evolution-gaming/vid2slides/internal/motion"
	"github.com/evolution-gaming/vid2slides/internal/video"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Saver persists captured slides, capture.Sink is the production implementation.
type Saver interface {
	Save(capture.Record) (string, error)
}

var _ Saver = (*capture.Sink)(nil)

// Config is the per-video detection configuration.
type Config struct {
	// Working frame width, aspect ratio is kept. Zero disables downscaling.
	ResizeWidth int
	Model       bgmodel.Params
	Thresholds  motion.Thresholds
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ResizeWidth < 0 {
		return fmt.Errorf("resize width should not be negative, got %d", c.ResizeWidth)
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	return c.Thresholds.Validate()
}

// Capture describes a saved slide.
type Capture struct {
	// Zero-based capture index.
	Index int
	// Sampler index of the captured frame.
	FrameIndex int
	Seconds    float64
	Minutes    float64
	Path       string
}

// Sample is change ratio of a single sampled frame.
type Sample struct {
	Index   int
	Seconds float64
	Ratio   float64
}

// RatioStats summarizes change ratios of all sampled frames.
type RatioStats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Median float64
}

// Result of a detection run.
type Result struct {
	Captures []Capture
	Samples  []Sample
	Stats    RatioStats
	Elapsed  time.Duration
}

// Ratios returns change ratios of all samples in order.
func (r Result) Ratios() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Ratio
	}
	return out
}

// Run drains sampler through the detection pipeline and saves captured slides
// via sink. Any decode or save error stops the run, the partial Result is
// returned along with the error.
func Run(sampler *video.Sampler, sink Saver, cfg Config) (res Result, err error) {
	if err := cfg.Validate(); err != nil {
		return res, fmt.Errorf("detect.Run() config: %w", err)
	}
	model, err := bgmodel.New(cfg.Model)
	if err != nil {
		return res, fmt.Errorf("detect.Run(): %w", err)
	}
	machine, err := motion.NewMachine(cfg.Thresholds)
	if err != nil {
		return res, fmt.Errorf("detect.Run(): %w", err)
	}

	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
		res.Stats = Summarize(res.Ratios())
	}()

	for sampler.Next() {
		frame := sampler.Frame()
		mask, err := model.Apply(WorkingFrame(frame.Image, cfg.ResizeWidth))
		if err != nil {
			return res, fmt.Errorf("frame %d: %w", frame.Index, err)
		}
		ratio := bgmodel.ChangeRatio(mask)
		if logging.DebugEnabled() {
			logging.Debugf("frame %d at %.2fs: change %.3f%%", frame.Index, frame.Seconds, ratio)
		}
		res.Samples = append(res.Samples, Sample{Index: frame.Index, Seconds: frame.Seconds, Ratio: ratio})

		n, ok := machine.Observe(ratio, frame.Index)
		if !ok {
			continue
		}
		rec := capture.Record{Index: n, Seconds: frame.Seconds, Image: frame.Image}
		path, err := sink.Save(rec)
		if err != nil {
			return res, fmt.Errorf("saving capture %d: %w", n, err)
		}
		res.Captures = append(res.Captures, Capture{
			Index:      n,
			FrameIndex: frame.Index,
			Seconds:    frame.Seconds,
			Minutes:    rec.Minutes(),
			Path:       path,
		})
	}
	if err := sampler.Err(); err != nil {
		return res, err
	}
	logging.Infof("%d screenshots captured in %s", len(res.Captures), time.Since(start).Round(time.Millisecond))
	return res, nil
}

// WorkingFrame returns img as *image.RGBA scaled to width with aspect ratio
// kept. Width 0 or equal to image width means no scaling.
func WorkingFrame(img image.Image, width int) *image.RGBA {
	b := img.Bounds()
	if width <= 0 || width == b.Dx() {
		if rgba, ok := img.(*image.RGBA); ok {
			return rgba
		}
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Summarize calculates descriptive statistics of ratios.
func Summarize(ratios []float64) RatioStats {
	if len(ratios) == 0 {
		return RatioStats{}
	}
	sorted := make([]float64, len(ratios))
	copy(sorted, ratios)
	sort.Float64s(sorted)

	s := RatioStats{
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
	if len(sorted) == 1 {
		s.Mean = sorted[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	return s
}
