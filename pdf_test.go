// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixImageDir fixture creates folder with a single slide image.
func fixImageDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "slides")
	require.NoError(t, os.Mkdir(dir, 0o755))
	f, err := os.Create(filepath.Join(dir, "000_0.02.png"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, fixSlideA(0)))
	return dir
}

func TestPdfApp_Run(t *testing.T) {
	t.Run("Default output path", func(t *testing.T) {
		dir := fixImageDir(t)
		err := CreatePdfCommand().Run([]string{"-i", dir + string(filepath.Separator)})
		require.NoError(t, err)
		assert.FileExists(t, dir+".pdf")
	})

	t.Run("Explicit output path", func(t *testing.T) {
		dir := fixImageDir(t)
		out := filepath.Join(t.TempDir(), "deck.pdf")
		err := CreatePdfCommand().Run([]string{"-i", dir, "-o", out})
		require.NoError(t, err)
		assert.FileExists(t, out)
		assert.NoFileExists(t, dir+".pdf")
	})

	t.Run("Same images give same document", func(t *testing.T) {
		dir := fixImageDir(t)
		var docs [][]byte
		for i := 0; i < 2; i++ {
			out := filepath.Join(t.TempDir(), "deck.pdf")
			require.NoError(t, CreatePdfCommand().Run([]string{"-i", dir, "-o", out}))
			b, err := os.ReadFile(out)
			require.NoError(t, err)
			docs = append(docs, b)
		}
		assert.Equal(t, docs[0], docs[1])
	})

	t.Run("Empty folder is not an error", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "empty")
		require.NoError(t, os.Mkdir(dir, 0o755))
		err := CreatePdfCommand().Run([]string{"-i", dir})
		assert.NoError(t, err)
		assert.NoFileExists(t, dir+".pdf")
	})
}

func TestPdfApp_Run_Negative(t *testing.T) {
	tests := map[string]struct {
		args     func(t *testing.T) []string
		wantCode int
	}{
		"Missing input": {
			args:     func(t *testing.T) []string { return nil },
			wantCode: 2,
		},
		"Input is a file": {
			args: func(t *testing.T) []string {
				return []string{"-i", filepath.Join(fixImageDir(t), "000_0.02.png")}
			},
			wantCode: 2,
		},
		"Unknown flag": {
			args:     func(t *testing.T) []string { return []string{"-nonexistent"} },
			wantCode: 2,
		},
		"Unwritable output": {
			args: func(t *testing.T) []string {
				return []string{"-i", fixImageDir(t), "-o", filepath.Join(t.TempDir(), "missing", "deck.pdf")}
			},
			wantCode: 1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := CreatePdfCommand()
			cmd.fs.SetOutput(&bytes.Buffer{})
			err := cmd.Run(tt.args(t))

			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.ExitCode())
		})
	}
}
