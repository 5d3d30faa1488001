// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metric

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Number of iterations for stress scenarios.
var stressIter int = 100_000

func Test_Store_HappyPath(t *testing.T) {
	store := NewStore()

	var id1, id2 ID
	var r1, r2 Record
	r1 = Record{Name: "first"}
	r2 = Record{Name: "second"}

	id1 = store.Insert(r1)
	id2 = store.Insert(r2)

	t.Run("Retrieve all inserted IDs in order", func(t *testing.T) {
		ids := store.GetIDs()
		assert.Equal(t, []ID{id1, id2}, ids)
	})

	t.Run("Inserted records can be retrieved", func(t *testing.T) {
		gotR1, err := store.Get(id1)
		assert.NoError(t, err)
		assert.Equal(t, r1, gotR1)
		gotR2, err := store.Get(id2)
		assert.NoError(t, err)
		assert.Equal(t, r2, gotR2)
	})

	t.Run("Update existing record", func(t *testing.T) {
		new := Record{Name: "new name", Captures: 3}
		old, _ := store.Get(id1)
		assert.NotEqual(t, old, new)

		err := store.Update(id1, new)
		assert.NoError(t, err)
		updated, _ := store.Get(id1)
		assert.Equal(t, new, updated)
	})
}

func Test_Store_SadPath(t *testing.T) {
	store := NewStore()
	nonExistentID := ID(100)

	t.Run("Error retrieving non-existent record", func(t *testing.T) {
		_, err := store.Get(nonExistentID)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("Error updating non-existent record", func(t *testing.T) {
		err := store.Update(nonExistentID, Record{Name: "update"})
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func Test_Store_Failed(t *testing.T) {
	store := NewStore()
	store.Insert(Record{Name: "ok"})
	store.Insert(Record{Name: "broken", Error: "unable to open"})
	store.Insert(Record{Name: "also broken", Error: "disk full"})

	assert.Equal(t, 2, store.Failed())
}

func Test_Store_WriteCSV(t *testing.T) {
	store := NewStore()
	store.Insert(Record{
		Name:          "lecture",
		SourceFile:    "videos/lecture.mp4",
		OutputDir:     "output/lecture",
		PDFFile:       "output/lecture.pdf",
		SampledFrames: 35,
		Captures:      2,
		Pages:         2,
		Elapsed:       1500 * time.Millisecond,
		RatioMax:      100,
	})
	store.Insert(Record{Name: "broken", Error: "unable to open"})

	var buf bytes.Buffer
	require.NoError(t, store.WriteCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header and a row per record")

	header := rows[0]
	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("column %s not found in %v", name, header)
		return -1
	}
	assert.Equal(t, "lecture", rows[1][col("Name")])
	assert.Equal(t, "2", rows[1][col("Captures")])
	assert.Equal(t, "output/lecture.pdf", rows[1][col("PDFFile")])
	assert.Equal(t, "broken", rows[2][col("Name")])
	assert.Equal(t, "unable to open", rows[2][col("Error")])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("write failed") }

func Test_Store_WriteCSV_Negative(t *testing.T) {
	store := NewStore()
	store.Insert(Record{Name: "x"})
	assert.Error(t, store.WriteCSV(failingWriter{}))
}

func Test_Store_StressInsertGet(t *testing.T) {
	var wg sync.WaitGroup
	var errCounter int64
	store := NewStore()
	for i := 0; i < stressIter; i++ {
		wg.Add(1)
		go func(iter int) {
			defer wg.Done()
			store.Insert(Record{Name: fmt.Sprintf("iter %d", iter)})
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.records, stressIter)
	assert.Len(t, store.GetIDs(), stressIter)
	for _, id := range store.GetIDs() {
		wg.Add(1)
		go func(id ID) {
			defer wg.Done()
			if _, err := store.Get(id); err != nil {
				atomic.AddInt64(&errCounter, 1)
			}
		}(id)
	}
	wg.Wait()

	if cnt := atomic.LoadInt64(&errCounter); cnt != 0 {
		t.Errorf("Stress Get caused %d errors", cnt)
	}
}

func Test_Store_StressUpdate(t *testing.T) {
	var wg sync.WaitGroup
	var errCounter int64
	store := NewStore()
	id := store.Insert(Record{Name: "first"})

	for i := 0; i < stressIter; i++ {
		wg.Add(1)
		go func(iter int) {
			defer wg.Done()
			if err := store.Update(id, Record{Name: fmt.Sprintf("update %d", iter)}); err != nil {
				atomic.AddInt64(&errCounter, 1)
			}
		}(i)
	}
	wg.Wait()
	if cnt := atomic.LoadInt64(&errCounter); cnt != 0 {
		t.Errorf("Stress Update caused %d errors", cnt)
	}
}
