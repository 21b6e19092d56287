// Package gesture implements the viewport→device coordinate transform that
// translates remote gesture coordinates from a sender-side viewport onto the
// local display, handling aspect mismatch and rotation. Nothing in the
// teacher performs this transform (its input handlers already take
// device-native coordinates); the closest idiom is the additive
// cursor-offset correction in internal/remote/desktop/session_control.go's
// switch_monitor handling — a plain struct plus float64 math, no external
// library. Per spec §9's resolved Open Question, this implements the
// min-scale/equal-offset policy exclusively and rejects input when the
// mapper has not been initialized, rather than replicating the source's
// letterbox/pillarbox dual-path bypass.
package gesture

import "fmt"

// Rotation describes the local display's orientation relative to its
// natural portrait/landscape axis. Only its effect on (dw, dh) matters here;
// actual pixel rotation is a platform-adapter concern.
type Rotation int

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// Point is a gesture coordinate in either viewport or device space.
type Point struct {
	X float64
	Y float64
}

// Mapper holds the current viewport/display geometry and the derived
// scale/offset used by Map. It must be initialized via New or Configure
// before Map/MapPoints will accept input.
type Mapper struct {
	vw, vh float64
	dw, dh float64
	rot    Rotation

	scale   float64
	offsetX float64
	offsetY float64

	ready bool
}

// New constructs an uninitialized Mapper. Call Configure before mapping.
func New() *Mapper {
	return &Mapper{}
}

// Configure sets the viewport and display geometry and recomputes the
// scale/offset. Must be called once up front and again on every rotation
// change.
func (m *Mapper) Configure(viewportW, viewportH, displayW, displayH float64, rot Rotation) error {
	if viewportW <= 0 || viewportH <= 0 || displayW <= 0 || displayH <= 0 {
		return fmt.Errorf("gesture: viewport and display dimensions must be positive")
	}
	m.vw, m.vh = viewportW, viewportH
	m.dw, m.dh = displayW, displayH
	m.rot = rot
	m.recompute()
	m.ready = true
	return nil
}

// recompute derives scale/offset using the min-scale/equal-offset policy
// resolved in spec §9 (worked example S6): scale is the smaller of the two
// per-axis scale factors, offsets center the scaled viewport within the
// display on whichever axis has slack.
func (m *Mapper) recompute() {
	scaleX := m.dw / m.vw
	scaleY := m.dh / m.vh

	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}
	m.scale = scale

	scaledW := m.vw * scale
	scaledH := m.vh * scale

	m.offsetX = (m.dw - scaledW) / 2
	m.offsetY = (m.dh - scaledH) / 2
}

// Map transforms one viewport point into device space. It rejects points
// outside the half-open viewport interval [0,vw) x [0,vh), and rejects the
// mapped result if it falls outside the half-open device interval
// [0,dw) x [0,dh). It also rejects if the mapper has not been configured.
func (m *Mapper) Map(p Point) (Point, error) {
	if !m.ready {
		return Point{}, fmt.Errorf("gesture: mapper not initialized")
	}
	if p.X < 0 || p.X >= m.vw || p.Y < 0 || p.Y >= m.vh {
		return Point{}, fmt.Errorf("gesture: point %v outside viewport bounds", p)
	}

	mapped := Point{
		X: p.X*m.scale + m.offsetX,
		Y: p.Y*m.scale + m.offsetY,
	}

	if mapped.X < 0 || mapped.X >= m.dw || mapped.Y < 0 || mapped.Y >= m.dh {
		return Point{}, fmt.Errorf("gesture: mapped point %v outside device bounds", mapped)
	}
	return mapped, nil
}

// MapPoints maps every point in points atomically: if any point is
// rejected, the whole gesture is rejected and no partial result is
// returned, matching the multi-point atomicity rule in spec §4.5.
func (m *Mapper) MapPoints(points []Point) ([]Point, error) {
	out := make([]Point, len(points))
	for i, p := range points {
		mapped, err := m.Map(p)
		if err != nil {
			return nil, fmt.Errorf("gesture: multi-point gesture rejected at index %d: %w", i, err)
		}
		out[i] = mapped
	}
	return out, nil
}

// Unmap is the inverse transform used only by the round-trip property test
// in spec §8 (invariant 4); it is not part of the production gesture path.
func (m *Mapper) Unmap(p Point) (Point, error) {
	if !m.ready {
		return Point{}, fmt.Errorf("gesture: mapper not initialized")
	}
	return Point{
		X: (p.X - m.offsetX) / m.scale,
		Y: (p.Y - m.offsetY) / m.scale,
	}, nil
}
