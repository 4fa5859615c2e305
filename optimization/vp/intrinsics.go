package vp

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/mfagerlund/rotera/model"
	"gonum.org/v1/gonum/stat"
)

// EstimateFocalLength computes the focal length from every pair of axis
// vanishing points via f² = -((vp1-pp)·(vp2-pp)), accepting only pairs
// that yield a positive f within (0, 2*imageWidth), and returns the
// median across accepted pairs (§4.2).
func EstimateFocalLength(vps map[model.Axis]r2.Point, principal r2.Point, imageWidth float64) (float64, bool) {
	axes := []model.Axis{model.AxisX, model.AxisY, model.AxisZ}
	var candidates []float64
	for i := 0; i < len(axes); i++ {
		for j := i + 1; j < len(axes); j++ {
			vp1, ok1 := vps[axes[i]]
			vp2, ok2 := vps[axes[j]]
			if !ok1 || !ok2 {
				continue
			}
			d1 := r2.Point{X: vp1.X - principal.X, Y: vp1.Y - principal.Y}
			d2 := r2.Point{X: vp2.X - principal.X, Y: vp2.Y - principal.Y}
			fSq := -(d1.X*d2.X + d1.Y*d2.Y)
			if fSq <= 0 {
				continue
			}
			f := math.Sqrt(fSq)
			if f > 0 && f < 2*imageWidth {
				candidates = append(candidates, f)
			}
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	sort.Float64s(candidates)
	return stat.Quantile(0.5, stat.Empirical, candidates, nil), true
}

// SmellsLikeDefault reports whether the current focal length is still
// the caller-supplied default (zero, or image-width derived placeholder),
// meaning focal-length estimation from VPs should overwrite it (§4.2).
func SmellsLikeDefault(current, imageWidth float64) bool {
	return current <= 0 || math.Abs(current-imageWidth) < 1e-9
}
