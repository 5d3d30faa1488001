// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pdf assembles slide images into a single PDF document.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for image.DecodeConfig
	_ "image/png"  // register decoder for image.DecodeConfig
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evolution-gaming/vid2slides/internal/logging"
	"github.com/go-pdf/fpdf"
)

// ErrNoImages is returned when a folder has no images to assemble.
var ErrNoImages = errors.New("no images found")

// DefaultExtensions are picked up by Assembler when Extensions is empty.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg"}

// DefaultDate is the creation and modification date of documents built without
// explicit CreationDate, so the same images always give the same bytes.
var DefaultDate = time.Unix(0, 0).UTC()

// imageTypes maps file extensions to fpdf image types.
var imageTypes = map[string]string{
	".png":  "PNG",
	".jpg":  "JPG",
	".jpeg": "JPG",
}

// Assembler builds a PDF with one page per image. Page size equals image size
// with one pixel mapped to one point, images are neither cropped nor scaled.
type Assembler struct {
	// File extensions to include, DefaultExtensions when empty.
	Extensions []string
	// Document creation and modification date, DefaultDate when zero.
	CreationDate time.Time
}

// Images returns lexicographically sorted image paths from dir.
func (a *Assembler) Images(dir string) ([]string, error) {
	exts := a.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("Images(): %w", err)
	}
	var images []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				images = append(images, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(images)
	return images, nil
}

// Assemble writes images from dir into outFile and returns number of pages.
// When dir holds no images ErrNoImages is returned and outFile is not created.
func (a *Assembler) Assemble(dir, outFile string) (int, error) {
	images, err := a.Images(dir)
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	logging.Infof("Converting images to PDF: %s", outFile)

	doc := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt"})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCatalogSort(true)
	date := a.CreationDate
	if date.IsZero() {
		date = DefaultDate
	}
	doc.SetCreationDate(date)
	doc.SetModificationDate(date)

	for _, path := range images {
		logging.Debug("Adding page: ", path)
		if err := addImagePage(doc, path); err != nil {
			return 0, err
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return 0, fmt.Errorf("Assemble() rendering PDF: %w", err)
	}
	if err := os.WriteFile(outFile, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("Assemble(): %w", err)
	}
	logging.Infof("PDF created at: %s", outFile)
	return len(images), nil
}

func addImagePage(doc *fpdf.Fpdf, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("addImagePage(): %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("addImagePage() %s: %w", path, err)
	}
	opts := fpdf.ImageOptions{ImageType: imageTypes[strings.ToLower(filepath.Ext(path))]}
	doc.RegisterImageOptionsReader(path, opts, bytes.NewReader(data))
	if err := doc.Error(); err != nil {
		return fmt.Errorf("addImagePage() %s: %w", path, err)
	}

	w, h := float64(cfg.Width), float64(cfg.Height)
	doc.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
	doc.ImageOptions(path, 0, 0, w, h, false, opts, 0, "")
	if err := doc.Error(); err != nil {
		return fmt.Errorf("addImagePage() %s: %w", path, err)
	}
	return nil
}
