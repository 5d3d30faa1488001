// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vid2slides tool's pdf subcommand implementation.

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evolution-gaming/vid2slides/internal/logging"
	"github.com/evolution-gaming/vid2slides/internal/pdf"
)

// CreatePdfCommand will create instance of PdfApp.
func CreatePdfCommand() *PdfApp {
	longHelp := `Subcommand "pdf" assembles images from a folder into a single PDF, one page
per image in file name order. Mandatory option -i is the image folder, PDF path
defaults to <folder>.pdf.

Examples:

  vid2slides pdf -i output/lecture
  vid2slides pdf -i path/to/images -o slides.pdf`

	app := &PdfApp{
		fs: flag.NewFlagSet("pdf", flag.ContinueOnError),
		gf: globalFlags{},
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flInput, "i", "", "Folder with images")
	app.fs.StringVar(&app.flOutput, "o", "", "Output PDF file (optional)")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Make sure PdfApp implements Commander interface.
var _ Commander = (*PdfApp)(nil)

// PdfApp is subcommand application context that implements Commander interface.
type PdfApp struct {
	fs       *flag.FlagSet
	gf       globalFlags
	flInput  string
	flOutput string
}

// Name implements Commander interface.
func (p *PdfApp) Name() string {
	return p.fs.Name()
}

// Help implements Commander interface.
func (p *PdfApp) Help() {
	p.fs.Usage()
}

// Run is main entry point into PdfApp execution.
func (p *PdfApp) Run(args []string) error {
	if err := p.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", p.fs.Name()),
		}
	}
	p.gf.Apply()

	if p.flInput == "" {
		p.fs.Usage()
		return &AppError{exitCode: 2, msg: "mandatory option -i is missing"}
	}
	fi, err := os.Stat(p.flInput)
	if err != nil || !fi.IsDir() {
		p.fs.Usage()
		return &AppError{exitCode: 2, msg: fmt.Sprintf("not a directory: %s", p.flInput)}
	}

	out := p.flOutput
	if out == "" {
		out = filepath.Clean(p.flInput) + ".pdf"
	}

	_, err = (&pdf.Assembler{}).Assemble(p.flInput, out)
	switch {
	case errors.Is(err, pdf.ErrNoImages):
		logging.Infof("No images found in %s. PDF not created.", p.flInput)
		return nil
	case err != nil:
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	return nil
}
