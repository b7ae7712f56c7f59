// Package chessboard finds the interior corners of a planar checkerboard target in grayscale images.
package chessboard

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/arcal/logging"
	"go.viam.com/arcal/rimage"
)

// maxSeeds is how many starting candidates lattice growth tries before giving up on a frame.
const maxSeeds = 8

// matchRadius is the fraction of the predicted lattice step within which a candidate is accepted.
const matchRadius = 0.35

// Config stores the parameters necessary for chessboard detection in an image.
type Config struct {
	BlurSigma     float64 `json:"blur_sigma"`      // gaussian pre-blur before the saddle map
	NMSWindow     int     `json:"nms_window"`      // half size of the non-maximum suppression window
	ResponseRatio float64 `json:"response_ratio"`  // minimum saddle response relative to the strongest one
	RingRadius    float64 `json:"ring_radius"`     // radius of the X-junction ring check in pixels
	SubPixWindow  int     `json:"subpix_window"`   // half size of the sub-pixel refinement window
	SubPixMaxIter int     `json:"subpix_max_iter"` // refinement iteration cap
	SubPixEpsilon float64 `json:"subpix_epsilon"`  // refinement stops once a step is smaller than this
}

// DefaultConfig returns the detection parameters used when none are configured: an 11x11 refinement
// window, 30 iterations and a 0.001 px step threshold.
func DefaultConfig() Config {
	return Config{
		BlurSigma:     1.0,
		NMSWindow:     5,
		ResponseRatio: 0.05,
		RingRadius:    5,
		SubPixWindow:  5,
		SubPixMaxIter: 30,
		SubPixEpsilon: 0.001,
	}
}

// Validate checks that every parameter is usable.
func (cfg Config) Validate() error {
	if cfg.BlurSigma < 0 {
		return errors.Errorf("blur_sigma must be non-negative, got %v", cfg.BlurSigma)
	}
	if cfg.NMSWindow < 1 {
		return errors.Errorf("nms_window must be at least 1, got %d", cfg.NMSWindow)
	}
	if cfg.ResponseRatio < 0 || cfg.ResponseRatio >= 1 {
		return errors.Errorf("response_ratio must be in [0, 1), got %v", cfg.ResponseRatio)
	}
	if cfg.RingRadius < 2 {
		return errors.Errorf("ring_radius must be at least 2, got %v", cfg.RingRadius)
	}
	if cfg.SubPixWindow < 1 {
		return errors.Errorf("subpix_window must be at least 1, got %d", cfg.SubPixWindow)
	}
	if cfg.SubPixMaxIter < 1 {
		return errors.Errorf("subpix_max_iter must be at least 1, got %d", cfg.SubPixMaxIter)
	}
	if cfg.SubPixEpsilon <= 0 {
		return errors.Errorf("subpix_epsilon must be positive, got %v", cfg.SubPixEpsilon)
	}
	return nil
}

// Detection is a complete set of refined interior corners in row-major order: Size.X columns per row,
// Size.Y rows.
type Detection struct {
	Corners []r2.Point
	Size    image.Point
}

// Detector finds checkerboards. It holds no per-frame state.
type Detector struct {
	cfg    Config
	logger logging.Logger
}

// NewDetector returns a detector with the given parameters.
func NewDetector(cfg Config, logger logging.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detection config")
	}
	return &Detector{cfg: cfg, logger: logger}, nil
}

// Detect looks for a board of size interior corners (columns x rows). It returns false when the pattern is
// absent, only partly visible or ambiguous.
func (d *Detector) Detect(gray *image.Gray, size image.Point) (Detection, bool) {
	if size.X < 2 || size.Y < 2 {
		d.logger.Warnw("pattern size too small", "cols", size.X, "rows", size.Y)
		return Detection{}, false
	}
	gray = rimage.MakeGray(gray)
	lum := rimage.GrayToDense(rimage.BlurGray(gray, d.cfg.BlurSigma))
	candidates := findSaddlePoints(lum, d.cfg)
	if len(candidates) < size.X*size.Y {
		d.logger.Debugw("not enough saddle points", "found", len(candidates), "need", size.X*size.Y)
		return Detection{}, false
	}
	pts := make([]r2.Point, len(candidates))
	for i, c := range candidates {
		pts[i] = r2.Point{X: float64(c.Pt.X), Y: float64(c.Pt.Y)}
	}
	grid, ok := growBoard(pts, size)
	if !ok {
		d.logger.Debugw("no complete lattice", "candidates", len(pts))
		return Detection{}, false
	}
	corners := RefineCorners(gray, grid, d.cfg.SubPixWindow, TermCriteria{MaxIter: d.cfg.SubPixMaxIter, Epsilon: d.cfg.SubPixEpsilon})
	return Detection{Corners: corners, Size: size}, true
}

// lattice maps integer grid coordinates to candidate indices.
type lattice struct {
	pts   []r2.Point
	nodes map[image.Point]int
	used  []bool
	minIJ image.Point
	maxIJ image.Point
}

func newLattice(pts []r2.Point) *lattice {
	return &lattice{pts: pts, nodes: map[image.Point]int{}, used: make([]bool, len(pts))}
}

func (l *lattice) set(ij image.Point, idx int) {
	if len(l.nodes) == 0 {
		l.minIJ, l.maxIJ = ij, ij
	}
	l.nodes[ij] = idx
	l.used[idx] = true
	l.minIJ = image.Point{min(l.minIJ.X, ij.X), min(l.minIJ.Y, ij.Y)}
	l.maxIJ = image.Point{max(l.maxIJ.X, ij.X), max(l.maxIJ.Y, ij.Y)}
}

func (l *lattice) at(ij image.Point) (r2.Point, bool) {
	idx, ok := l.nodes[ij]
	if !ok {
		return r2.Point{}, false
	}
	return l.pts[idx], true
}

func (l *lattice) extent() image.Point {
	return l.maxIJ.Sub(l.minIJ).Add(image.Point{1, 1})
}

// nearestFree returns the unused candidate closest to p within radius.
func (l *lattice) nearestFree(p r2.Point, radius float64) (int, bool) {
	best, bestDist := -1, radius
	for i, q := range l.pts {
		if l.used[i] {
			continue
		}
		if dist := q.Sub(p).Norm(); dist <= bestDist {
			best, bestDist = i, dist
		}
	}
	return best, best >= 0
}

// predict estimates where the node next to ij in direction dir should be. It extrapolates along the
// row or column when possible, then completes a parallelogram with a filled neighbour, and finally
// falls back to the seed step.
func (l *lattice) predict(ij, dir image.Point, seedStep r2.Point) r2.Point {
	here, _ := l.at(ij)
	if prev, ok := l.at(ij.Sub(dir)); ok {
		return here.Add(here.Sub(prev))
	}
	perp := image.Point{dir.Y, dir.X}
	for _, side := range []image.Point{perp, perp.Mul(-1)} {
		a, okA := l.at(ij.Add(side))
		b, okB := l.at(ij.Add(side).Add(dir))
		if okA && okB {
			return here.Add(b.Sub(a))
		}
	}
	if dir.X+dir.Y < 0 {
		return here.Sub(seedStep)
	}
	return here.Add(seedStep)
}

// growFrom builds a lattice starting at seed, bounded by the larger pattern dimension.
func growFrom(pts []r2.Point, seed int, maxDim int) (*lattice, bool) {
	order := make([]int, 0, len(pts)-1)
	for i := range pts {
		if i != seed {
			order = append(order, i)
		}
	}
	origin := pts[seed]
	sort.Slice(order, func(a, b int) bool {
		return pts[order[a]].Sub(origin).Norm() < pts[order[b]].Sub(origin).Norm()
	})
	if len(order) < 2 {
		return nil, false
	}
	u := pts[order[0]].Sub(origin)
	var v r2.Point
	second := -1
	for _, i := range order[1:] {
		cand := pts[i].Sub(origin)
		if cand.Norm() > 2.5*u.Norm() {
			break
		}
		if math.Abs(u.Dot(cand))/(u.Norm()*cand.Norm()) < 0.5 {
			v, second = cand, i
			break
		}
	}
	if second < 0 {
		return nil, false
	}

	l := newLattice(pts)
	l.set(image.Point{0, 0}, seed)
	l.set(image.Point{1, 0}, order[0])
	l.set(image.Point{0, 1}, second)
	queue := []image.Point{{0, 0}, {1, 0}, {0, 1}}
	dirs := []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for len(queue) > 0 {
		ij := queue[0]
		queue = queue[1:]
		for _, dir := range dirs {
			next := ij.Add(dir)
			if _, ok := l.nodes[next]; ok {
				continue
			}
			seedStep := u
			if dir.X == 0 {
				seedStep = v
			}
			here, _ := l.at(ij)
			pred := l.predict(ij, dir, seedStep)
			idx, ok := l.nearestFree(pred, matchRadius*pred.Sub(here).Norm())
			if !ok {
				continue
			}
			l.set(next, idx)
			ext := l.extent()
			if ext.X > maxDim || ext.Y > maxDim {
				return nil, false
			}
			queue = append(queue, next)
		}
	}
	return l, true
}

// growBoard tries seeds nearest the candidate centroid and returns the first lattice matching size,
// ordered row-major.
func growBoard(pts []r2.Point, size image.Point) ([]r2.Point, bool) {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	n := float64(len(pts))
	centroid := r2.Point{X: floats.Sum(xs) / n, Y: floats.Sum(ys) / n}
	seeds := make([]int, len(pts))
	for i := range seeds {
		seeds[i] = i
	}
	sort.Slice(seeds, func(a, b int) bool {
		return pts[seeds[a]].Sub(centroid).Norm() < pts[seeds[b]].Sub(centroid).Norm()
	})
	maxDim := max(size.X, size.Y)
	for _, seed := range seeds[:min(maxSeeds, len(seeds))] {
		l, ok := growFrom(pts, seed, maxDim)
		if !ok || len(l.nodes) != size.X*size.Y {
			continue
		}
		ext := l.extent()
		if ext != size && ext != (image.Point{size.Y, size.X}) {
			continue
		}
		return orderGrid(l, size), true
	}
	return nil, false
}

// orderGrid lays the lattice out row-major with columns along the pattern's column count. Handedness is
// fixed so that cross(colStep, rowStep) > 0 in image coordinates, and the column step points toward +x
// (+y on a tie).
func orderGrid(l *lattice, size image.Point) []r2.Point {
	cols, rows := size.X, size.Y
	ext := l.extent()
	swap := ext.X != cols
	at := func(r, c int) r2.Point {
		ij := image.Point{c, r}
		if swap {
			ij = image.Point{r, c}
		}
		p, _ := l.at(ij.Add(l.minIJ))
		return p
	}
	grid := make([]r2.Point, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			grid = append(grid, at(r, c))
		}
	}

	colStep, rowStep := meanSteps(grid, cols, rows)
	if colStep.Cross(rowStep) < 0 {
		grid = flipRows(grid, cols, rows)
		colStep, _ = meanSteps(grid, cols, rows)
	}
	tie := math.Abs(colStep.X) < 1e-9*colStep.Norm()
	if (!tie && colStep.X < 0) || (tie && colStep.Y < 0) {
		// 180 degree turn keeps handedness
		for i, j := 0, len(grid)-1; i < j; i, j = i+1, j-1 {
			grid[i], grid[j] = grid[j], grid[i]
		}
	}
	return grid
}

func meanSteps(grid []r2.Point, cols, rows int) (r2.Point, r2.Point) {
	var colStep, rowStep r2.Point
	for r := 0; r < rows; r++ {
		colStep = colStep.Add(grid[r*cols+cols-1].Sub(grid[r*cols]))
	}
	for c := 0; c < cols; c++ {
		rowStep = rowStep.Add(grid[(rows-1)*cols+c].Sub(grid[c]))
	}
	return colStep, rowStep
}

func flipRows(grid []r2.Point, cols, rows int) []r2.Point {
	out := make([]r2.Point, 0, len(grid))
	for r := rows - 1; r >= 0; r-- {
		out = append(out, grid[r*cols:(r+1)*cols]...)
	}
	return out
}
