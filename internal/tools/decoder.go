// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Frame decoding via ffmpeg. Frames are read from ffmpeg's stdout as raw rgb24
// rasters of the size reported by ffprobe.

package tools

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"text/template"

	"github.com/evolution-gaming/vid2slides/internal/logging"
	"github.com/evolution-gaming/vid2slides/internal/lw"
	"github.com/evolution-gaming/vid2slides/internal/video"
	"github.com/google/shlex"
)

const (
	// Decoding modes.
	DecodeSeek   = "seek"
	DecodeStream = "stream"
	// Keep at most this much of ffmpeg stderr for error reports.
	stderrLimit = 64 * 1024
)

// DefaultFfmpegSeekTemplate is a command line template for decoding one frame at
// a timestamp. It is split into arguments before templating, so file names with
// spaces need no quoting.
var DefaultFfmpegSeekTemplate = "-hide_banner -loglevel error -nostdin -noautorotate " +
	"-ss {{.Timestamp}} -i {{.VideoFile}} -map 0:v:0 -frames:v 1 -f rawvideo -pix_fmt rgb24 -"

// defaultFfmpegStreamTemplate resamples the whole video to the sampling rate in
// a single ffmpeg process.
var defaultFfmpegStreamTemplate = "-hide_banner -loglevel error -nostdin -noautorotate " +
	"-i {{.VideoFile}} -map 0:v:0 -vf fps={{.Rate}} -f rawvideo -pix_fmt rgb24 -"

// DecodeError is returned when ffmpeg fails, it carries captured stderr.
type DecodeError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("ffmpeg: %s", e.Err)
	}
	return fmt.Sprintf("ffmpeg: %s: %s", e.Err, msg)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecoderConfig exposes parameters for ffmpeg based decoder creation.
type DecoderConfig struct {
	FfmpegPath string
	// One of DecodeSeek or DecodeStream.
	Mode string
	// Template for DecodeSeek mode, DefaultFfmpegSeekTemplate when empty.
	SeekTemplate string
	// Sampling rate, required by DecodeStream mode.
	Rate float64
}

// NewFfmpegDecoder probes videoFile with probe and returns decoder for it.
// Failure to probe means the source cannot be opened.
func NewFfmpegDecoder(cfg DecoderConfig, probe video.MetadataExtractor, videoFile string) (video.Decoder, error) {
	meta, err := probe.ExtractMetadata(videoFile)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", videoFile, err)
	}
	base := rawDecoder{
		exePath:   cfg.FfmpegPath,
		videoFile: videoFile,
		meta:      meta,
	}

	switch cfg.Mode {
	case DecodeSeek, "":
		tpl := cfg.SeekTemplate
		if tpl == "" {
			tpl = DefaultFfmpegSeekTemplate
		}
		args, err := parseArgsTemplate(tpl)
		if err != nil {
			return nil, fmt.Errorf("NewFfmpegDecoder() seek template: %w", err)
		}
		return &SeekDecoder{rawDecoder: base, args: args}, nil
	case DecodeStream:
		if !(cfg.Rate > 0) {
			return nil, fmt.Errorf("NewFfmpegDecoder() stream mode needs positive rate, got %v", cfg.Rate)
		}
		args, err := parseArgsTemplate(defaultFfmpegStreamTemplate)
		if err != nil {
			return nil, fmt.Errorf("NewFfmpegDecoder() stream template: %w", err)
		}
		return &StreamDecoder{rawDecoder: base, args: args, rate: cfg.Rate}, nil
	default:
		return nil, fmt.Errorf("NewFfmpegDecoder() unknown decode mode %q", cfg.Mode)
	}
}

// tplContext is data available to argument templates.
type tplContext struct {
	VideoFile string
	Timestamp string
	Rate      string
}

// parseArgsTemplate splits command line template into per-argument templates.
func parseArgsTemplate(s string) ([]*template.Template, error) {
	parts, err := shlex.Split(s)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, errors.New("empty template")
	}
	tpls := make([]*template.Template, 0, len(parts))
	for i, p := range parts {
		tpl, err := template.New(strconv.Itoa(i)).Option("missingkey=error").Parse(p)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", p, err)
		}
		tpls = append(tpls, tpl)
	}
	return tpls, nil
}

func expandArgs(tpls []*template.Template, ctx tplContext) ([]string, error) {
	args := make([]string, 0, len(tpls))
	var sb strings.Builder
	for _, tpl := range tpls {
		sb.Reset()
		if err := tpl.Execute(&sb, ctx); err != nil {
			return nil, err
		}
		args = append(args, sb.String())
	}
	return args, nil
}

// formatSeconds renders timestamp the way ffmpeg accepts it.
func formatSeconds(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 6, 64)
}

type rawDecoder struct {
	exePath   string
	videoFile string
	meta      video.Metadata
}

func (d *rawDecoder) frameSize() int {
	return d.meta.Width * d.meta.Height * 3
}

// FrameCount implements video.Decoder.
func (d *rawDecoder) FrameCount() int {
	return d.meta.FrameCount
}

// SeekDecoder runs one ffmpeg process per requested timestamp.
type SeekDecoder struct {
	rawDecoder
	args []*template.Template
}

// FrameAt implements video.Decoder.
func (d *SeekDecoder) FrameAt(ts float64) (image.Image, error) {
	args, err := expandArgs(d.args, tplContext{VideoFile: d.videoFile, Timestamp: formatSeconds(ts)})
	if err != nil {
		return nil, fmt.Errorf("FrameAt() expand template: %w", err)
	}
	var stderr bytes.Buffer
	cmd := exec.Command(d.exePath, args...) //#nosec G204
	cmd.Stderr = lw.TruncateWriter(&stderr, stderrLimit)
	logging.Debugf("Running: %s", cmd)
	out, err := cmd.Output()
	if err != nil {
		return nil, &DecodeError{Args: cmd.Args, Stderr: stderr.String(), Err: err}
	}
	// Seeking past the last frame is not an error for ffmpeg, it just produces
	// no output.
	if len(out) == 0 {
		return nil, video.ErrEndOfStream
	}
	if len(out) < d.frameSize() {
		return nil, fmt.Errorf("FrameAt() short frame: got %d bytes, want %d", len(out), d.frameSize())
	}
	return RGB24ToImage(out[:d.frameSize()], d.meta.Width, d.meta.Height), nil
}

// Close implements video.Decoder. Nothing is held between calls.
func (d *SeekDecoder) Close() error {
	return nil
}

// StreamDecoder keeps a single ffmpeg process resampling the video to a fixed
// rate and serves frames in forward order only.
type StreamDecoder struct {
	rawDecoder
	args   []*template.Template
	rate   float64
	cmd    *exec.Cmd
	stdout io.ReadCloser
	r      *bufio.Reader
	stderr *bytes.Buffer
	buf    []byte
	// Index of the next frame to be read from stdout.
	next int
	eos  bool
}

func (d *StreamDecoder) start() error {
	args, err := expandArgs(d.args, tplContext{
		VideoFile: d.videoFile,
		Rate:      strconv.FormatFloat(d.rate, 'f', -1, 64),
	})
	if err != nil {
		return fmt.Errorf("expand template: %w", err)
	}
	d.stderr = &bytes.Buffer{}
	d.cmd = exec.Command(d.exePath, args...) //#nosec G204
	d.cmd.Stderr = lw.TruncateWriter(d.stderr, stderrLimit)
	if d.stdout, err = d.cmd.StdoutPipe(); err != nil {
		return err
	}
	logging.Debugf("Running: %s", d.cmd)
	if err := d.cmd.Start(); err != nil {
		d.cmd = nil
		return &DecodeError{Args: args, Err: err}
	}
	d.r = bufio.NewReaderSize(d.stdout, d.frameSize())
	d.buf = make([]byte, d.frameSize())
	return nil
}

// readFrame reads next raw frame into d.buf.
func (d *StreamDecoder) readFrame() error {
	_, err := io.ReadFull(d.r, d.buf)
	switch {
	case err == nil:
		d.next++
		return nil
	case errors.Is(err, io.EOF):
		d.eos = true
		// Clean end of output, but ffmpeg still may have failed.
		if werr := d.wait(); werr != nil {
			return werr
		}
		return video.ErrEndOfStream
	default:
		d.eos = true
		werr := d.wait()
		if werr != nil {
			return werr
		}
		return fmt.Errorf("reading frame %d: %w", d.next, err)
	}
}

func (d *StreamDecoder) wait() error {
	if d.cmd == nil {
		return nil
	}
	err := d.cmd.Wait()
	args := d.cmd.Args
	d.cmd = nil
	if err != nil {
		return &DecodeError{Args: args, Stderr: d.stderr.String(), Err: err}
	}
	return nil
}

// FrameAt implements video.Decoder. Timestamps must not go backwards.
func (d *StreamDecoder) FrameAt(ts float64) (image.Image, error) {
	if d.eos {
		return nil, video.ErrEndOfStream
	}
	if d.r == nil {
		if err := d.start(); err != nil {
			d.eos = true
			return nil, fmt.Errorf("FrameAt() starting ffmpeg: %w", err)
		}
	}
	// Frame k of resampled output sits at k/rate, skip everything before ts.
	want := int(math.Ceil(ts*d.rate - 1e-9))
	if want < d.next-1 {
		return nil, fmt.Errorf("FrameAt() cannot seek backwards to %.3fs", ts)
	}
	for d.next <= want {
		if err := d.readFrame(); err != nil {
			return nil, err
		}
	}
	// Copy out, d.buf is reused.
	return RGB24ToImage(d.buf, d.meta.Width, d.meta.Height), nil
}

// Close implements video.Decoder, terminates ffmpeg if it is still running.
func (d *StreamDecoder) Close() error {
	d.eos = true
	if d.cmd == nil {
		return nil
	}
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	d.cmd = nil
	return nil
}

// RGB24ToImage converts packed 8-bit RGB raster into *image.RGBA. Data is copied.
func RGB24ToImage(pix []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i+2 < len(pix) && j < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = pix[i]
		img.Pix[j+1] = pix[i+1]
		img.Pix[j+2] = pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
