package dnd

// Rect is an axis-aligned box in viewport coordinates
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bottom returns the y coordinate of the lower edge
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Right returns the x coordinate of the right edge
func (r Rect) Right() float64 { return r.Left + r.Width }

// Contains reports whether the point lies inside the rectangle, edges included
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Right() && y >= r.Top && y <= r.Bottom()
}

// Point is a pointer position in viewport coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geometry answers layout queries about the rendered canvas
type Geometry interface {
	// BoundingBox returns the rendered box of a component
	BoundingBox(id string) (Rect, bool)
	// ElementsAt returns the ids of components under a point, topmost first
	ElementsAt(x, y float64) []string
}

// Box is the rendered box of one component
type Box struct {
	ID   string `json:"id"`
	Rect Rect   `json:"rect"`
}

// Layout is a Geometry built from boxes listed in paint order: a box listed
// later is painted above the boxes before it.
type Layout []Box

// BoundingBox implements Geometry
func (l Layout) BoundingBox(id string) (Rect, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].ID == id {
			return l[i].Rect, true
		}
	}
	return Rect{}, false
}

// ElementsAt implements Geometry
func (l Layout) ElementsAt(x, y float64) []string {
	var ids []string
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].Rect.Contains(x, y) {
			ids = append(ids, l[i].ID)
		}
	}
	return ids
}
