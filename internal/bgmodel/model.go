// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bgmodel implements an adaptive per-pixel Gaussian mixture model of
// a static background (Zivkovic's improved MOG, known as MOG2).
//
// Every pixel keeps up to Params.Mixtures weighted Gaussian components with an
// isotropic variance over the 3 color channels. Components are kept sorted by
// weight, the heaviest ones whose weights add up to BackgroundRatio describe
// the background. A pixel is background when it lies within VarThreshold
// squared Mahalanobis distance of one of those components.
package bgmodel

import (
	"errors"
	"fmt"
	"image"
)

// Mask values, same as in common background subtraction APIs.
const (
	Background uint8 = 0
	Shadow     uint8 = 127
	Foreground uint8 = 255
)

// Params holds model tuning. Zero values are not meaningful, start from
// DefaultParams().
type Params struct {
	// Number of most recent frames that dominate the model.
	History int
	// Squared Mahalanobis distance threshold for background classification.
	VarThreshold float64
	// Mark shadows (darker copies of background) separately.
	DetectShadows bool

	// Max components per pixel.
	Mixtures int
	// Portion of total weight that is considered background.
	BackgroundRatio float64
	// Squared distance threshold to match sample against existing component.
	VarThresholdGen float64
	// Variance of a newly created component, and its bounds.
	VarInit float64
	VarMin  float64
	VarMax  float64
	// Complexity reduction prior, prunes weak components.
	ComplexityReduction float64
	// Shadow is a darker background with brightness ratio above ShadowThreshold.
	ShadowThreshold float64
}

// DefaultParams returns parameters equal to the usual MOG2 defaults.
func DefaultParams() Params {
	return Params{
		History:             500,
		VarThreshold:        16,
		DetectShadows:       true,
		Mixtures:            5,
		BackgroundRatio:     0.9,
		VarThresholdGen:     9,
		VarInit:             15,
		VarMin:              4,
		VarMax:              75,
		ComplexityReduction: 0.05,
		ShadowThreshold:     0.5,
	}
}

// Validate checks that parameters are sensible.
func (p Params) Validate() error {
	switch {
	case p.History < 1:
		return fmt.Errorf("history should be positive, got %d", p.History)
	case !(p.VarThreshold > 0):
		return fmt.Errorf("variance threshold should be positive, got %v", p.VarThreshold)
	case p.Mixtures < 1:
		return fmt.Errorf("mixtures should be positive, got %d", p.Mixtures)
	case !(p.BackgroundRatio > 0 && p.BackgroundRatio <= 1):
		return fmt.Errorf("background ratio should be in (0,1], got %v", p.BackgroundRatio)
	case !(p.VarMin > 0 && p.VarMin <= p.VarInit && p.VarInit <= p.VarMax):
		return fmt.Errorf("variance bounds should satisfy 0 < min <= init <= max, got %v/%v/%v",
			p.VarMin, p.VarInit, p.VarMax)
	}
	return nil
}

// gaussian is a single mixture component.
type gaussian struct {
	weight   float32
	variance float32
	mean     [3]float32
}

// Model is the per-video background model. It is not safe for concurrent use
// and must not be shared between videos.
type Model struct {
	p      Params
	width  int
	height int
	// Components of pixel i live in modes[i*Mixtures : i*Mixtures+used[i]].
	modes []gaussian
	used  []uint8
	// Number of frames applied so far.
	frames int
}

// New creates an empty Model. Frame size is fixed by the first Apply call.
func New(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("bgmodel.New(): %w", err)
	}
	if p.Mixtures > 255 {
		return nil, errors.New("bgmodel.New(): too many mixtures")
	}
	return &Model{p: p}, nil
}

// Frames returns number of frames the model has seen.
func (m *Model) Frames() int {
	return m.frames
}

// learningRate follows the usual schedule: fast adaptation for the first few
// frames, then 1/History.
func (m *Model) learningRate() float32 {
	n := 2 * m.frames
	if n > m.p.History {
		n = m.p.History
	}
	return 1 / float32(n)
}

func (m *Model) init(w, h int) {
	m.width, m.height = w, h
	m.modes = make([]gaussian, w*h*m.p.Mixtures)
	m.used = make([]uint8, w*h)
}

// Apply updates the model with img and returns foreground mask of the same
// size. All frames given to one Model must have the same size.
func (m *Model) Apply(img *image.RGBA) (*image.Gray, error) {
	b := img.Bounds()
	if m.modes == nil {
		m.init(b.Dx(), b.Dy())
	} else if b.Dx() != m.width || b.Dy() != m.height {
		return nil, fmt.Errorf("Apply() frame size %dx%d differs from model %dx%d",
			b.Dx(), b.Dy(), m.width, m.height)
	}
	m.frames++

	mask := image.NewGray(image.Rect(0, 0, m.width, m.height))
	alpha := m.learningRate()
	for y := 0; y < m.height; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < m.width; x++ {
			px := [3]float32{float32(row[4*x]), float32(row[4*x+1]), float32(row[4*x+2])}
			mask.Pix[y*mask.Stride+x] = m.update(y*m.width+x, px, alpha)
		}
	}
	return mask, nil
}

// update runs one step of the mixture update for pixel i and classifies it.
func (m *Model) update(i int, px [3]float32, alpha float32) uint8 {
	k := m.p.Mixtures
	modes := m.modes[i*k : i*k+k]
	n := int(m.used[i])

	var (
		tb       = float32(m.p.VarThreshold)
		tg       = float32(m.p.VarThresholdGen)
		bgRatio  = float32(m.p.BackgroundRatio)
		varMin   = float32(m.p.VarMin)
		varMax   = float32(m.p.VarMax)
		oneMinus = 1 - alpha
		prune    = -alpha * float32(m.p.ComplexityReduction)
		total    float32
		isBg     bool
		fits     bool
	)

	// Components are visited in weight order, so total is the weight of the
	// heavier components preceding the current one.
	for j := 0; j < n; j++ {
		g := &modes[j]
		w := oneMinus*g.weight + prune
		if !fits {
			var d [3]float32
			var d2 float32
			for c := 0; c < 3; c++ {
				d[c] = g.mean[c] - px[c]
				d2 += d[c] * d[c]
			}
			if total < bgRatio && d2 < tb*g.variance {
				isBg = true
			}
			if d2 < tg*g.variance {
				fits = true
				w += alpha
				r := alpha / w
				for c := 0; c < 3; c++ {
					g.mean[c] -= r * d[c]
				}
				v := g.variance + r*(d2-g.variance)
				if v < varMin {
					v = varMin
				} else if v > varMax {
					v = varMax
				}
				g.variance = v
			}
		}
		if w < -prune {
			w = 0
		}
		g.weight = w
		total += w
	}

	// Drop pruned components, restore weight order and normalize.
	kept := 0
	for j := 0; j < n; j++ {
		if modes[j].weight > 0 {
			modes[kept] = modes[j]
			kept++
		}
	}
	n = kept
	sortByWeight(modes[:n])
	if total > 0 {
		inv := 1 / total
		for j := 0; j < n; j++ {
			modes[j].weight *= inv
		}
	}

	if !fits {
		// Replace the weakest component or add a new one.
		j := n
		if n == k {
			j = k - 1
		} else {
			n++
		}
		if n == 1 {
			modes[j] = gaussian{weight: 1}
		} else {
			for l := 0; l < n; l++ {
				modes[l].weight *= oneMinus
			}
			modes[j] = gaussian{weight: alpha}
		}
		modes[j].mean = px
		modes[j].variance = float32(m.p.VarInit)
		sortByWeight(modes[:n])
	}
	m.used[i] = uint8(n)

	switch {
	case isBg:
		return Background
	case m.p.DetectShadows && m.isShadow(modes[:n], px):
		return Shadow
	default:
		return Foreground
	}
}

// sortByWeight is insertion sort by descending weight. Stable, and the slices
// are tiny.
func sortByWeight(modes []gaussian) {
	for j := 1; j < len(modes); j++ {
		for l := j; l > 0 && modes[l].weight > modes[l-1].weight; l-- {
			modes[l], modes[l-1] = modes[l-1], modes[l]
		}
	}
}

// isShadow checks whether px is a darker version of one of the background
// components.
func (m *Model) isShadow(modes []gaussian, px [3]float32) bool {
	var total float32
	tb := float32(m.p.VarThreshold)
	tau := float32(m.p.ShadowThreshold)
	for _, g := range modes {
		var num, den float32
		for c := 0; c < 3; c++ {
			num += g.mean[c] * px[c]
			den += g.mean[c] * g.mean[c]
		}
		if den == 0 {
			return false
		}
		if num <= den && num >= tau*den {
			a := num / den
			var d2 float32
			for c := 0; c < 3; c++ {
				d := a*g.mean[c] - px[c]
				d2 += d * d
			}
			if d2 < tb*g.variance*a*a {
				return true
			}
		}
		total += g.weight
		if total > float32(m.p.BackgroundRatio) {
			return false
		}
	}
	return false
}

// ChangeRatio returns percentage (0-100) of non-background pixels in mask.
// Shadow pixels count as changed, same as any other non-zero value.
func ChangeRatio(mask *image.Gray) float64 {
	b := mask.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	changed := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := mask.Pix[mask.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x] != Background {
				changed++
			}
		}
	}
	return float64(changed) / float64(total) * 100
}
