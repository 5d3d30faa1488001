// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable helpers and fixtures for tests.
package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/evolution-gaming/vid2slides/internal/video"
	"github.com/evolution-gaming/vid2slides/internal/video/videotest"
)

const (
	fixWidth  = 64
	fixHeight = 48
)

// fixFakeTools fixture creates non-functional ffmpeg and ffprobe binaries,
// enough for configuration validation.
func fixFakeTools(t *testing.T) (ffmpeg, ffprobe string) {
	t.Helper()
	dir := t.TempDir()
	ffmpeg = filepath.Join(dir, "ffmpeg")
	ffprobe = filepath.Join(dir, "ffprobe")
	for _, p := range []string{ffmpeg, ffprobe} {
		if err := os.WriteFile(p, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
			t.Fatalf("Unable to create fake tool: %v", err)
		}
	}
	return ffmpeg, ffprobe
}

// fixConfigFile fixture writes JSON configuration with fake tools, output dir
// and given extra options.
func fixConfigFile(t *testing.T, outDir string, extra map[string]any) string {
	t.Helper()
	ffmpeg, ffprobe := fixFakeTools(t)
	opts := map[string]any{
		"ffmpeg_path":  ffmpeg,
		"ffprobe_path": ffprobe,
		"output_dir":   outDir,
	}
	for k, v := range extra {
		opts[k] = v
	}
	b, err := json.Marshal(opts)
	if err != nil {
		t.Fatal(err)
	}
	fPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(fPath, b, 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return fPath
}

// fixVideoDir fixture creates directory with (fake) video files and entries
// that should be ignored in directory mode.
func fixVideoDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("not really a video"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

var (
	fixSlideA = videotest.Solid(fixWidth, fixHeight,
		color.RGBA{20, 20, 160, 0xff}, color.RGBA{240, 240, 240, 0xff}, image.Rect(8, 8, 40, 20))
	fixSlideB = videotest.Solid(fixWidth, fixHeight,
		color.RGBA{230, 200, 40, 0xff}, color.RGBA{10, 10, 10, 0xff}, image.Rect(20, 24, 60, 44))
)

// fixTwoSlides is 3s of a slide, 1s of motion and 3s of another slide.
func fixTwoSlides() *videotest.Decoder {
	return &videotest.Decoder{
		FPS: 25,
		Segments: []videotest.Segment{
			{Duration: 3, Frame: fixSlideA},
			{Duration: 1, Frame: videotest.Noise(fixWidth, fixHeight, 42)},
			{Duration: 3, Frame: fixSlideB},
		},
	}
}

// fixStatic is a 4s video of a single slide.
func fixStatic() *videotest.Decoder {
	return &videotest.Decoder{
		FPS:      25,
		Segments: []videotest.Segment{{Duration: 4, Frame: fixSlideA}},
	}
}

// fixDecoders returns decoder factory serving decoders by video base name,
// unknown names fail to open.
func fixDecoders(t *testing.T, decoders map[string]*videotest.Decoder) func(string) (video.Decoder, error) {
	t.Helper()
	return func(videoFile string) (video.Decoder, error) {
		d, ok := decoders[filepath.Base(videoFile)]
		if !ok {
			return nil, fmt.Errorf("unable to open %s", videoFile)
		}
		return d, nil
	}
}
