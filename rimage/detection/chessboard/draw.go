package chessboard

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"

	"go.viam.com/arcal/rimage"
)

// rowColors cycles through the rows of a found board.
var rowColors = []color.Color{
	rimage.MustColor("#ff0000"),
	rimage.MustColor("#ff7f00"),
	rimage.MustColor("#e0e000"),
	rimage.MustColor("#00ff00"),
	rimage.MustColor("#00e0e0"),
	rimage.MustColor("#0000ff"),
	rimage.MustColor("#ff00ff"),
}

var notFoundColor = rimage.MustColor("#ff0000")

const cornerRadius = 4.

// DrawCorners highlights a detected grid. A found board gets a circled cross per corner, one colour per row,
// and a polyline through the corners in order. Otherwise the corners are drawn as plain red circles.
func DrawCorners(dc *gg.Context, size image.Point, corners []r2.Point, found bool) {
	if !found {
		for _, p := range corners {
			rimage.DrawCircle(dc, p, cornerRadius, notFoundColor, 1)
		}
		return
	}
	var prev *r2.Point
	for i, p := range corners {
		row := 0
		if size.X > 0 {
			row = i / size.X
		}
		c := rowColors[row%len(rowColors)]
		if prev != nil {
			rimage.DrawLine(dc, *prev, p, c, 1)
		}
		rimage.DrawLine(dc, p.Add(r2.Point{X: -cornerRadius, Y: -cornerRadius}), p.Add(r2.Point{X: cornerRadius, Y: cornerRadius}), c, 1)
		rimage.DrawLine(dc, p.Add(r2.Point{X: -cornerRadius, Y: cornerRadius}), p.Add(r2.Point{X: cornerRadius, Y: -cornerRadius}), c, 1)
		rimage.DrawCircle(dc, p, cornerRadius, c, 1)
		pt := p
		prev = &pt
	}
}
