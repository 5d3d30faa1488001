// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package video

import (
	"errors"
	"fmt"
	"image"
)

// ErrEndOfStream is returned by Decoder when there is no frame at or after
// the requested timestamp.
var ErrEndOfStream = errors.New("end of stream")

// Decoder is the contract towards external media decoding.
type Decoder interface {
	// FrameAt returns the first decoded frame at or after ts seconds.
	FrameAt(ts float64) (image.Image, error)
	// FrameCount is the total number of frames in the source, 0 if unknown.
	FrameCount() int
	// Close releases decoder resources.
	Close() error
}

// Frame is a single sampled frame.
type Frame struct {
	// Sequence number, the first sampled frame has Index 1.
	Index int
	// Position of the frame on sampling clock.
	Seconds float64
	Image   image.Image
}

// Sampler reads frames from Decoder at a fixed logical rate, independent of
// the native frame rate of the video.
//
// Usage follows bufio.Scanner:
//
//	for s.Next() {
//		f := s.Frame()
//	}
//	if err := s.Err(); err != nil {
//	}
//
// Sampler does not own Decoder, closing it is up to the caller.
type Sampler struct {
	dec   Decoder
	rate  float64
	frame Frame
	err   error
	done  bool
}

// NewSampler creates Sampler for given sampling rate in frames per second.
func NewSampler(dec Decoder, rate float64) (*Sampler, error) {
	if dec == nil {
		return nil, errors.New("NewSampler() nil decoder")
	}
	if !(rate > 0) {
		return nil, fmt.Errorf("NewSampler() sampling rate should be positive, got %v", rate)
	}
	return &Sampler{dec: dec, rate: rate}, nil
}

// Rate returns sampling rate.
func (s *Sampler) Rate() float64 {
	return s.rate
}

// Next advances the sampling clock and decodes the next frame. It returns false
// when the stream is exhausted or decoding failed, see Err().
func (s *Sampler) Next() bool {
	if s.done {
		return false
	}
	// Derive timestamp from index instead of accumulating 1/rate to keep the
	// clock free of floating point drift.
	idx := s.frame.Index + 1
	ts := float64(idx-1) / s.rate
	img, err := s.dec.FrameAt(ts)
	if err != nil {
		s.done = true
		if !errors.Is(err, ErrEndOfStream) {
			s.err = fmt.Errorf("decoding frame %d at %.3fs: %w", idx, ts, err)
		}
		s.frame = Frame{Index: s.frame.Index}
		return false
	}
	s.frame = Frame{Index: idx, Seconds: ts, Image: img}
	return true
}

// Frame returns the most recent frame produced by Next.
func (s *Sampler) Frame() Frame {
	return s.frame
}

// Err returns the first non end-of-stream error.
func (s *Sampler) Err() error {
	return s.err
}
