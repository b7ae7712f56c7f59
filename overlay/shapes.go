package overlay

import (
	"image/color"

	"github.com/golang/geo/r3"

	"go.viam.com/arcal/rimage"
)

// Shape selects the solid drawn on a calibrated board.
type Shape int

const (
	// ShapeCuboid is a box over the whole board.
	ShapeCuboid Shape = iota
	// ShapeHouse is a small gabled house standing on the board.
	ShapeHouse
)

func (s Shape) String() string {
	switch s {
	case ShapeCuboid:
		return "cuboid"
	case ShapeHouse:
		return "house"
	default:
		return "unknown"
	}
}

// Next returns the shape the toggle switches to.
func (s Shape) Next() Shape {
	if s == ShapeCuboid {
		return ShapeHouse
	}
	return ShapeCuboid
}

// axisLength is the length of each drawn axis in squares.
const axisLength = 3.

// arrowTip is the head length of an axis arrow relative to its shaft.
const arrowTip = 0.1

var (
	axisColors = [3]color.Color{
		rimage.MustColor("#ff0000"),
		rimage.MustColor("#00ff00"),
		rimage.MustColor("#0000ff"),
	}

	cuboidBaseColor   = rimage.MustColor("#ffd400")
	cuboidTopColor    = rimage.MustColor("#ff00c8")
	cuboidPillarColor = rimage.MustColor("#00e5ff")

	houseWallColor    = rimage.MustColor("#d9b38c")
	houseRoofColor    = rimage.MustColor("#a52a2a")
	houseGableColor   = rimage.MustColor("#f0e0c0")
	houseOutlineColor = rimage.MustColor("#202020")
)

// edge joins two vertices of a wireframe.
type edge struct {
	From, To int
	Color    color.Color
}

// face is a filled polygon over vertex indices.
type face struct {
	Vertices []int
	Color    color.Color
}

// cuboidVertices spans x in [0, cols-1], y in [-(rows-1), 0] and z in [0, (rows-1)/2], in squares.
func cuboidVertices(cols, rows int) []r3.Vector {
	w, h := float64(cols-1), float64(rows-1)
	d := h / 2
	return []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: w, Y: 0, Z: 0}, {X: w, Y: -h, Z: 0}, {X: 0, Y: -h, Z: 0},
		{X: 0, Y: 0, Z: d}, {X: w, Y: 0, Z: d}, {X: w, Y: -h, Z: d}, {X: 0, Y: -h, Z: d},
	}
}

var cuboidEdges = []edge{
	{0, 1, cuboidBaseColor}, {1, 2, cuboidBaseColor}, {2, 3, cuboidBaseColor}, {3, 0, cuboidBaseColor},
	{4, 5, cuboidTopColor}, {5, 6, cuboidTopColor}, {6, 7, cuboidTopColor}, {7, 4, cuboidTopColor},
	{0, 4, cuboidPillarColor}, {1, 5, cuboidPillarColor}, {2, 6, cuboidPillarColor}, {3, 7, cuboidPillarColor},
}

// houseVertices: 4 base corners, 4 eave corners, 2 ridge ends, in squares.
var houseVertices = []r3.Vector{
	{X: 2, Y: -1, Z: 0}, {X: 6, Y: -1, Z: 0}, {X: 6, Y: -4, Z: 0}, {X: 2, Y: -4, Z: 0},
	{X: 2, Y: -1, Z: 2}, {X: 6, Y: -1, Z: 2}, {X: 6, Y: -4, Z: 2}, {X: 2, Y: -4, Z: 2},
	{X: 2, Y: -2.5, Z: 3.5}, {X: 6, Y: -2.5, Z: 3.5},
}

var houseFaces = []face{
	{[]int{0, 1, 5, 4}, houseWallColor},
	{[]int{1, 2, 6, 5}, houseWallColor},
	{[]int{2, 3, 7, 6}, houseWallColor},
	{[]int{3, 0, 4, 7}, houseWallColor},
	{[]int{4, 5, 9, 8}, houseRoofColor},
	{[]int{6, 7, 8, 9}, houseRoofColor},
	{[]int{7, 4, 8}, houseGableColor},
	{[]int{5, 6, 9}, houseGableColor},
}
