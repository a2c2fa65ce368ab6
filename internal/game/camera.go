package game

import "math"

// Zoom bounds. Outside this range labels and grid lines stop being legible.
const (
	MinZoom = 0.1
	MaxZoom = 3.0
)

// Camera maps world coordinates to screen coordinates. One camera per map
// session; it is never shared between sessions.
type Camera struct {
	X, Y        float64
	Zoom        float64
	GridOffsetX float64
	GridOffsetY float64
	GridHeight  float64
}

func NewCamera(gridHeight float64) Camera {
	return Camera{Zoom: 1.0, GridHeight: gridHeight}
}

func (c Camera) ScreenToWorld(sx, sy float64) (float64, float64) {
	return (sx - c.X) / c.Zoom, (sy - c.Y) / c.Zoom
}

func (c Camera) WorldToScreen(wx, wy float64) (float64, float64) {
	return wx*c.Zoom + c.X, wy*c.Zoom + c.Y
}

// SnapToGrid rounds each axis to the nearest multiple of cell.
func SnapToGrid(x, y, cell float64) (float64, float64) {
	return math.Round(x/cell) * cell, math.Round(y/cell) * cell
}

// Pan is unbounded; the map itself is drawn within explicit bounds so there
// is nothing to clamp against.
func (c *Camera) Pan(dx, dy float64) {
	c.X += dx
	c.Y += dy
}

// ZoomAt zooms in (delta > 0) or out by a fixed factor, clamped, keeping the
// world point under the screen point (cx, cy) fixed. The offset rewrite must
// stay exactly cx - (cx-x)*ratio or the view jumps under the cursor.
func (c *Camera) ZoomAt(delta, cx, cy float64) {
	oldZoom := c.Zoom
	factor := 1.1
	if delta < 0 {
		factor = 0.9
	}
	newZoom := math.Min(MaxZoom, math.Max(MinZoom, c.Zoom*factor))
	c.Zoom = newZoom

	ratio := newZoom / oldZoom
	c.X = cx - (cx-c.X)*ratio
	c.Y = cy - (cy-c.Y)*ratio
}
