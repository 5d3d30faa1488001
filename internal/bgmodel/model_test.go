// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bgmodel

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixParams(history int, shadows bool) Params {
	p := DefaultParams()
	p.History = history
	p.DetectShadows = shadows
	return p
}

func fixUniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func fixNoise(w, h int, seed int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rand.New(rand.NewSource(seed)).Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func apply(t *testing.T, m *Model, img *image.RGBA) float64 {
	t.Helper()
	mask, err := m.Apply(img)
	require.NoError(t, err)
	require.Equal(t, img.Bounds().Size(), mask.Bounds().Size())
	return ChangeRatio(mask)
}

func TestModel_StaticScene(t *testing.T) {
	m, err := New(fixParams(30, false))
	require.NoError(t, err)
	frame := fixNoise(40, 30, 1)

	assert.Equal(t, 100.0, apply(t, m, frame), "first frame has no background yet")
	for i := 0; i < 20; i++ {
		assert.Equal(t, 0.0, apply(t, m, frame), "frame %d of a static scene", i+2)
	}
	assert.Equal(t, 21, m.Frames())
}

func TestModel_DetectsChange(t *testing.T) {
	m, err := New(fixParams(30, false))
	require.NoError(t, err)
	bg := fixUniform(40, 30, color.RGBA{R: 20, G: 20, B: 20, A: 255})
	for i := 0; i < 10; i++ {
		apply(t, m, bg)
	}

	// Paint a quarter of the frame white.
	changed := fixUniform(40, 30, color.RGBA{R: 20, G: 20, B: 20, A: 255})
	for y := 0; y < 15; y++ {
		for x := 0; x < 20; x++ {
			changed.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	assert.InDelta(t, 25.0, apply(t, m, changed), 1e-9)
}

func TestModel_SmallNoiseIsBackground(t *testing.T) {
	m, err := New(fixParams(30, false))
	require.NoError(t, err)
	base := fixNoise(40, 30, 7)
	for i := 0; i < 10; i++ {
		apply(t, m, base)
	}

	// Jitter every channel by +-1, well within variance threshold.
	jittered := image.NewRGBA(base.Bounds())
	copy(jittered.Pix, base.Pix)
	for i := range jittered.Pix {
		if i%4 == 3 {
			continue
		}
		if jittered.Pix[i] < 255 {
			jittered.Pix[i]++
		} else {
			jittered.Pix[i]--
		}
	}
	assert.Equal(t, 0.0, apply(t, m, jittered))
}

func TestModel_AdaptsToNewBackground(t *testing.T) {
	history := 10
	m, err := New(fixParams(history, false))
	require.NoError(t, err)
	a := fixUniform(16, 16, color.RGBA{R: 200, A: 255})
	b := fixUniform(16, 16, color.RGBA{B: 200, A: 255})
	for i := 0; i < 3*history; i++ {
		apply(t, m, a)
	}

	assert.Equal(t, 100.0, apply(t, m, b), "new scene is foreground at first")
	var last float64
	for i := 0; i < history; i++ {
		last = apply(t, m, b)
	}
	assert.Equal(t, 0.0, last, "static new scene should become background within history")
}

func TestModel_Shadows(t *testing.T) {
	bg := fixUniform(8, 8, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	darker := fixUniform(8, 8, color.RGBA{R: 140, G: 140, B: 140, A: 255})

	tests := map[string]struct {
		shadows bool
		want    uint8
	}{
		"Shadow detection on":  {shadows: true, want: Shadow},
		"Shadow detection off": {shadows: false, want: Foreground},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m, err := New(fixParams(30, tc.shadows))
			require.NoError(t, err)
			for i := 0; i < 10; i++ {
				_, err := m.Apply(bg)
				require.NoError(t, err)
			}
			mask, err := m.Apply(darker)
			require.NoError(t, err)
			for _, v := range mask.Pix {
				require.Equal(t, tc.want, v)
			}
			assert.Equal(t, 100.0, ChangeRatio(mask), "shadow pixels count as changed")
		})
	}
}

func TestModel_Deterministic(t *testing.T) {
	frames := []*image.RGBA{
		fixNoise(20, 10, 1), fixNoise(20, 10, 1), fixNoise(20, 10, 2),
		fixNoise(20, 10, 2), fixNoise(20, 10, 3), fixNoise(20, 10, 1),
	}
	m1, err := New(fixParams(5, true))
	require.NoError(t, err)
	m2, err := New(fixParams(5, true))
	require.NoError(t, err)
	for _, f := range frames {
		mask1, err := m1.Apply(f)
		require.NoError(t, err)
		mask2, err := m2.Apply(f)
		require.NoError(t, err)
		assert.Equal(t, mask1.Pix, mask2.Pix)
	}
}

func TestModel_SubImage(t *testing.T) {
	m, err := New(fixParams(30, false))
	require.NoError(t, err)
	full := fixNoise(20, 20, 3)
	sub := full.SubImage(image.Rect(5, 5, 15, 15)).(*image.RGBA)

	apply(t, m, sub)
	assert.Equal(t, 0.0, apply(t, m, sub))
}

func TestModel_SizeMismatch(t *testing.T) {
	m, err := New(fixParams(30, false))
	require.NoError(t, err)
	_, err = m.Apply(fixNoise(10, 10, 1))
	require.NoError(t, err)
	_, err = m.Apply(fixNoise(11, 10, 1))
	assert.ErrorContains(t, err, "differs from model")
}

func TestParams_Validate(t *testing.T) {
	tests := map[string]func(p *Params){
		"Zero history":        func(p *Params) { p.History = 0 },
		"Zero var threshold":  func(p *Params) { p.VarThreshold = 0 },
		"No mixtures":         func(p *Params) { p.Mixtures = 0 },
		"Ratio above 1":       func(p *Params) { p.BackgroundRatio = 1.5 },
		"VarInit below min":   func(p *Params) { p.VarInit = 1 },
		"VarMax below init":   func(p *Params) { p.VarMax = 10 },
		"Non-positive VarMin": func(p *Params) { p.VarMin = 0 },
	}
	assert.NoError(t, DefaultParams().Validate())
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			assert.Error(t, p.Validate())
			_, err := New(p)
			assert.Error(t, err)
		})
	}
}

func TestChangeRatio(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 10, 10))
	assert.Equal(t, 0.0, ChangeRatio(mask))

	for i := 0; i < 5; i++ {
		mask.Pix[i] = Foreground
	}
	mask.Pix[50] = Shadow
	assert.InDelta(t, 6.0, ChangeRatio(mask), 1e-12)

	assert.Equal(t, 0.0, ChangeRatio(image.NewGray(image.Rect(0, 0, 0, 0))))
}
