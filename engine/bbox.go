package engine

import (
	iface "YoloDetServer/interface"
)

// MaxObjects is the fixed capacity of the native result container.
const MaxObjects = 1000

// BboxT mirrors the native bbox_t layout.
type BboxT struct {
	X, Y, W, H    uint32
	Prob          float32
	ObjID         uint32
	TrackID       uint32
	FramesCounter uint32
	X3D, Y3D, Z3D float32
}

// Empty reports a sentinel slot: zero width and zero height.
func (b *BboxT) Empty() bool {
	return b.W == 0 && b.H == 0
}

// BboxContainer mirrors bbox_t_container; the native side fills it in place.
type BboxContainer struct {
	Candidates [MaxObjects]BboxT
}

// Convert drops empty slots and maps the rest to YoloItems, resolving class
// ids through r. An unresolvable class id fails the whole conversion.
func Convert(c *BboxContainer, r *ObjectTypeResolver) ([]iface.YoloItem, error) {
	items := make([]iface.YoloItem, 0)
	for i := range c.Candidates {
		o := &c.Candidates[i]
		if o.Empty() {
			continue
		}
		label, err := r.Resolve(int(o.ObjID))
		if err != nil {
			return nil, err
		}
		items = append(items, iface.YoloItem{
			X:          int(o.X),
			Y:          int(o.Y),
			Width:      int(o.W),
			Height:     int(o.H),
			Confidence: float64(o.Prob),
			Type:       label,
		})
	}
	return items, nil
}
