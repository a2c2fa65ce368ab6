package game

import (
	"math"
	"testing"
)

const eps = 1e-9

func TestScreenWorldRoundTrip(t *testing.T) {
	cams := []Camera{
		{Zoom: 1.0},
		{X: 120, Y: -48, Zoom: 0.35},
		{X: -999.5, Y: 4321, Zoom: 2.75},
		{X: 3, Y: 7, Zoom: MinZoom},
	}
	points := [][2]float64{{0, 0}, {17.5, -3.25}, {4000, 3000}, {-512, 1}}

	for _, cam := range cams {
		for _, p := range points {
			wx, wy := cam.ScreenToWorld(p[0], p[1])
			sx, sy := cam.WorldToScreen(wx, wy)
			if math.Abs(sx-p[0]) > eps || math.Abs(sy-p[1]) > eps {
				t.Errorf("cam %+v point %v: round trip gave (%v, %v)", cam, p, sx, sy)
			}
		}
	}
}

func TestZoomAtClamps(t *testing.T) {
	cam := Camera{Zoom: MaxZoom}
	cam.ZoomAt(1, 100, 100)
	if cam.Zoom != MaxZoom {
		t.Errorf("zoom in past max: got %v", cam.Zoom)
	}

	cam = Camera{Zoom: MinZoom}
	cam.ZoomAt(-1, 100, 100)
	if cam.Zoom != MinZoom {
		t.Errorf("zoom out past min: got %v", cam.Zoom)
	}
}

func TestZoomAtKeepsCursorPointFixed(t *testing.T) {
	cam := Camera{X: 40, Y: -60, Zoom: 1.2}
	const cx, cy = 320.0, 240.0

	wx, wy := cam.ScreenToWorld(cx, cy)
	cam.ZoomAt(1, cx, cy)
	sx, sy := cam.WorldToScreen(wx, wy)

	if math.Abs(sx-cx) > 1e-6 || math.Abs(sy-cy) > 1e-6 {
		t.Errorf("world point under cursor moved to (%v, %v)", sx, sy)
	}

	// Same property on the way back out.
	wx, wy = cam.ScreenToWorld(cx, cy)
	cam.ZoomAt(-1, cx, cy)
	sx, sy = cam.WorldToScreen(wx, wy)
	if math.Abs(sx-cx) > 1e-6 || math.Abs(sy-cy) > 1e-6 {
		t.Errorf("zoom out moved cursor point to (%v, %v)", sx, sy)
	}
}

func TestSnapToGrid(t *testing.T) {
	cases := []struct {
		x, y, cell float64
		wantX      float64
		wantY      float64
	}{
		{0, 0, 50, 0, 0},
		{24, 26, 50, 0, 50},
		{75, 75, 50, 100, 100}, // round half away from zero
		{-30, -20, 50, -50, 0},
		{130, 119, 60, 120, 120},
	}
	for _, c := range cases {
		gx, gy := SnapToGrid(c.x, c.y, c.cell)
		if gx != c.wantX || gy != c.wantY {
			t.Errorf("snap(%v,%v,%v) = (%v,%v), want (%v,%v)", c.x, c.y, c.cell, gx, gy, c.wantX, c.wantY)
		}
	}
}

func TestPanIsUnbounded(t *testing.T) {
	cam := Camera{Zoom: 1}
	cam.Pan(1e7, -1e7)
	if cam.X != 1e7 || cam.Y != -1e7 {
		t.Errorf("pan clamped: %+v", cam)
	}
}
