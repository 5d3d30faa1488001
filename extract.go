// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vid2slides tool's extract subcommand implementation.

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evolution-gaming/vid2slides/internal/analysis"
	"github.com/evolution-gaming/vid2slides/internal/capture"
	"github.com/evolution-gaming/vid2slides/internal/detect"
	"github.com/evolution-gaming/vid2slides/internal/logging"
	"github.com/evolution-gaming/vid2slides/internal/metric"
	"github.com/evolution-gaming/vid2slides/internal/pdf"
	"github.com/evolution-gaming/vid2slides/internal/tools"
	"github.com/evolution-gaming/vid2slides/internal/video"
)

// CreateExtractCommand will create instance of ExtractApp.
func CreateExtractCommand() *ExtractApp {
	longHelp := `Subcommand "extract" detects slide changes in a video (or every supported
video in a directory), saves one image per slide into an output folder named
after the video and assembles the images into <folder>.pdf next to it.

Supported video extensions: .mp4, .avi, .mov, .webm.

Examples:

  vid2slides extract -i lecture.mp4
  vid2slides extract -i path/to/videos -out-dir path/to/output -report -plot`

	app := &ExtractApp{
		fs:     flag.NewFlagSet("extract", flag.ContinueOnError),
		gf:     globalFlags{},
		mStore: metric.NewStore(),
	}
	app.openDecoder = app.openFfmpegDecoder
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flInput, "i", "", "Input video file or directory with videos")
	app.fs.StringVar(&app.flOutDir, "out-dir", "", "Output directory, overrides output_dir configuration option")
	app.fs.BoolVar(&app.flNoPDF, "no-pdf", false, "Do not assemble PDF, keep slide images only")
	app.fs.BoolVar(&app.flPlot, "plot", false, "Create change ratio plot next to each output folder")
	app.fs.BoolVar(&app.flReport, "report", false, "Write CSV report with per-video results into output directory")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Make sure ExtractApp implements Commander interface.
var _ Commander = (*ExtractApp)(nil)

// ExtractApp is subcommand application context that implements Commander interface.
type ExtractApp struct {
	// Configuration object
	cfg *Config
	// FlagSet instance
	fs *flag.FlagSet
	// Input video or directory
	flInput string
	// Output directory override
	flOutDir string
	// Skip PDF assembly
	flNoPDF bool
	// Create change ratio plots
	flPlot bool
	// Write CSV report
	flReport bool
	// Global flags
	gf globalFlags
	// Per-video result store
	mStore *metric.Store
	// Decoder factory, replaced in tests
	openDecoder func(videoFile string) (video.Decoder, error)
}

// Name implements Commander interface.
func (a *ExtractApp) Name() string {
	return a.fs.Name()
}

// Help implements Commander interface.
func (a *ExtractApp) Help() {
	a.fs.Usage()
}

// init will do ExtractApp state initialization.
func (a *ExtractApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.fs.Name()),
		}
	}
	a.gf.Apply()

	if a.flInput == "" {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	if _, err := os.Stat(a.flInput); err != nil {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("input does not exist? %s", err),
		}
	}

	c, err := LoadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if a.flOutDir != "" {
		c.OutputDir = NewConfigVal(a.flOutDir)
	}
	a.cfg = &c

	return nil
}

// inputVideos resolves input flag into a list of videos.
func (a *ExtractApp) inputVideos() ([]string, error) {
	fi, err := os.Stat(a.flInput)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{a.flInput}, nil
	}
	return listVideos(a.flInput)
}

func (a *ExtractApp) openFfmpegDecoder(videoFile string) (video.Decoder, error) {
	return tools.NewFfmpegDecoder(a.cfg.decoderConfig(), a.cfg.metadataExtractor(), videoFile)
}

// processVideo runs extraction for a single video. The video's record is
// stored before processing starts and updated as results come in, any failure
// is recorded there and never propagates to other videos.
func (a *ExtractApp) processVideo(videoFile string) metric.ID {
	start := time.Now()
	rec := metric.Record{
		Name:       capture.FolderName(videoFile),
		SourceFile: videoFile,
	}
	id := a.mStore.Insert(rec)
	save := func() {
		rec.Elapsed = time.Since(start)
		rec.HElapsed = rec.Elapsed.Round(time.Millisecond).String()
		if err := a.mStore.Update(id, rec); err != nil {
			logging.Errorf("%s: storing result: %s", videoFile, err)
		}
	}
	fail := func(err error) metric.ID {
		rec.Error = err.Error()
		save()
		logging.Errorf("%s: %s", videoFile, err)
		return id
	}
	logging.Infof("Processing video: %s", videoFile)

	dir, err := capture.InitOutputFolder(a.cfg.OutputDir.Value(), videoFile)
	if err != nil {
		return fail(err)
	}
	rec.OutputDir = dir

	dec, err := a.openDecoder(videoFile)
	if err != nil {
		return fail(err)
	}
	defer dec.Close()
	rec.FrameCount = dec.FrameCount()
	logging.Infof("Total frames: %d", rec.FrameCount)

	sampler, err := video.NewSampler(dec, a.cfg.SampleRate.Value())
	if err != nil {
		return fail(err)
	}
	logging.Infof("Sample rate: %v fps", sampler.Rate())
	sink, err := capture.NewSink(dir, a.cfg.ImageFormat.Value())
	if err != nil {
		return fail(err)
	}

	res, err := detect.Run(sampler, sink, a.cfg.detectConfig())
	rec.SampledFrames = len(res.Samples)
	rec.Captures = len(res.Captures)
	rec.RatioMin = res.Stats.Min
	rec.RatioMax = res.Stats.Max
	rec.RatioMean = res.Stats.Mean
	rec.RatioStDev = res.Stats.StdDev
	rec.RatioMedian = res.Stats.Median
	if err != nil {
		return fail(err)
	}
	// Slides are on disk at this point, keep the counts even if later steps fail.
	save()

	if a.flPlot {
		plotFile := dir + "_changes.png"
		if err := analysis.MultiPlotChangeRatio(res, a.cfg.thresholds(), rec.Name, plotFile); err != nil {
			logging.Errorf("%s: creating change ratio plot: %s", videoFile, err)
		} else {
			rec.PlotFile = plotFile
			logging.Infof("Change ratio plot done: %s", plotFile)
		}
	}

	if !a.flNoPDF {
		pdfFile := dir + ".pdf"
		assembler := &pdf.Assembler{Extensions: []string{"." + a.cfg.ImageFormat.Value()}}
		pages, err := assembler.Assemble(dir, pdfFile)
		switch {
		case errors.Is(err, pdf.ErrNoImages):
			logging.Infof("No images found in %s. PDF not created.", dir)
		case err != nil:
			return fail(err)
		default:
			rec.PDFFile = pdfFile
			rec.Pages = pages
		}
	}

	save()
	return id
}

// saveReport writes recorded results to report file in output directory.
func (a *ExtractApp) saveReport() error {
	outDir := a.cfg.OutputDir.Value()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	reportPath := filepath.Join(outDir, a.cfg.ReportFileName.Value())
	reportOut, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("creating CSV report file: %w", err)
	}
	defer reportOut.Close()

	if err := a.mStore.WriteCSV(reportOut); err != nil {
		return err
	}
	logging.Infof("Report saved: %s", reportPath)
	return nil
}

// Run is main entry point into ExtractApp execution.
func (a *ExtractApp) Run(args []string) error {
	logging.Infof("vid2slides version: %s", vInfo)
	if err := a.init(args); err != nil {
		return err
	}

	logging.Debugf("Application configuration: %#v", a.cfg)
	if err := a.cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	videos, err := a.inputVideos()
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if len(videos) == 0 {
		logging.Infof("No supported video files found in %s", a.flInput)
		return nil
	}

	for _, v := range videos {
		id := a.processVideo(v)
		logging.Debugf("Stored record (id=%v) for %s", id, v)
	}

	if a.flReport {
		if err := a.saveReport(); err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
	}

	if n := a.mStore.Failed(); n != 0 {
		return &AppError{
			exitCode: 1,
			msg:      fmt.Sprintf("%d of %d videos failed, see log for reasons", n, len(videos)),
		}
	}

	logging.Info("Done")
	return nil
}
