// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Bounded writers for capturing output of external processes.
//
// An external decoder that misbehaves can flood its stderr, so whatever we keep
// in memory for error reporting has to be capped.
package lw

import "io"

// TruncatingWriter keeps the first N bytes written to it and silently drops
// the rest. A Write never fails: when attached to exec.Cmd.Stderr a failing
// copy would turn into a command error.
type TruncatingWriter struct {
	W io.Writer
	N uint
	// Set once any byte has been dropped.
	Truncated bool
}

// Write implements io.Writer for *TruncatingWriter.
func (s *TruncatingWriter) Write(b []byte) (int, error) {
	keep := b
	if uint(len(keep)) > s.N {
		keep = keep[:s.N]
		s.Truncated = true
	}
	if len(keep) > 0 {
		n, err := s.W.Write(keep)
		s.N -= uint(n)
		if err != nil {
			return n, err
		}
	}
	return len(b), nil
}

func TruncateWriter(w io.Writer, n uint) *TruncatingWriter {
	return &TruncatingWriter{W: w, N: n}
}
