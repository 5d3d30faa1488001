// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package videotest provides in-memory video.Decoder implementations for tests.
package videotest

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/evolution-gaming/vid2slides/internal/video"
)

// Segment is a stretch of synthetic video.
type Segment struct {
	// Duration in seconds.
	Duration float64
	// Frame renders native frame n (counted from segment start).
	Frame func(n int) image.Image
}

// Decoder is a synthetic constant frame rate video assembled from segments.
type Decoder struct {
	FPS      float64
	Segments []Segment
	// Open counts FrameAt calls, Closed is set by Close.
	Calls  int
	Closed bool
	// Fail makes FrameAt return this error once Calls reaches FailAt.
	Fail   error
	FailAt int
}

var _ video.Decoder = (*Decoder)(nil)

func (d *Decoder) duration() float64 {
	var total float64
	for _, s := range d.Segments {
		total += s.Duration
	}
	return total
}

// FrameCount implements video.Decoder.
func (d *Decoder) FrameCount() int {
	return int(math.Round(d.duration() * d.FPS))
}

// FrameAt implements video.Decoder. Returns the native frame with the smallest
// presentation time that is at or after ts.
func (d *Decoder) FrameAt(ts float64) (image.Image, error) {
	d.Calls++
	if d.Fail != nil && d.Calls >= d.FailAt {
		return nil, d.Fail
	}
	// Native frame index at or after ts, tolerate float noise.
	n := int(math.Ceil(ts*d.FPS - 1e-9))
	if n >= d.FrameCount() {
		return nil, video.ErrEndOfStream
	}
	start := 0
	for _, s := range d.Segments {
		count := int(math.Round(s.Duration * d.FPS))
		if n < start+count {
			return s.Frame(n - start), nil
		}
		start += count
	}
	return nil, video.ErrEndOfStream
}

// Close implements video.Decoder.
func (d *Decoder) Close() error {
	d.Closed = true
	return nil
}

// Solid returns a frame renderer for a constant color w x h image with a
// rectangle of contrasting color, so different "slides" differ in content.
func Solid(w, h int, bg, fg color.RGBA, box image.Rectangle) func(int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := bg
			if (image.Point{x, y}).In(box) {
				c = fg
			}
			img.SetRGBA(x, y, c)
		}
	}
	return func(int) image.Image { return img }
}

// Noise returns a frame renderer producing a different pseudo-random image for
// every frame. Output is deterministic for given seed.
func Noise(w, h int, seed int64) func(int) image.Image {
	return func(n int) image.Image {
		r := rand.New(rand.NewSource(seed + int64(n)))
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		r.Read(img.Pix)
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
		return img
	}
}
