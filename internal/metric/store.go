// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Centralised store of per-video extraction results.

package metric

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jszwec/csvutil"
)

var ErrRecordNotFound = errors.New("record not found")

type ID int64

type Store struct {
	mu      sync.RWMutex
	records map[ID]Record
	next    ID
}

func NewStore() *Store {
	return &Store{
		records: make(map[ID]Record),
	}
}

func (s *Store) Insert(r Record) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.next] = r
	id := s.next
	s.next++

	return id
}

func (s *Store) Get(id ID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return r, fmt.Errorf("getting record: %w", ErrRecordNotFound)
	}

	return r, nil
}

// GetIDs returns IDs of all records in insertion order.
func (s *Store) GetIDs() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) Update(id ID, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("updating record: %w", ErrRecordNotFound)
	}

	s.records[id] = r
	return nil
}

// Failed returns number of records with non-empty Error.
func (s *Store) Failed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, r := range s.records {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// WriteCSV writes all records in insertion order as CSV with a header line.
func (s *Store) WriteCSV(w io.Writer) error {
	ids := s.GetIDs()
	report := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(id)
		if err != nil {
			return fmt.Errorf("getting record (id=%v) from metric store: %w", id, err)
		}
		report = append(report, r)
	}

	cw := csv.NewWriter(w)
	if err := csvutil.NewEncoder(cw).Encode(report); err != nil {
		return fmt.Errorf("writing CSV report: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// Record contains extraction results for a single video.
type Record struct {
	Name       string
	SourceFile string
	OutputDir  string
	PDFFile    string
	PlotFile   string
	// Source frame count as reported by decoder.
	FrameCount    int
	SampledFrames int
	Captures      int
	Pages         int
	HElapsed      string
	Elapsed       time.Duration

	RatioMin    float64
	RatioMax    float64
	RatioMean   float64
	RatioStDev  float64
	RatioMedian float64

	// Failure reason, empty on success.
	Error string
}
