package world

import (
	"fmt"
	"time"

	"plaza.gg/internal/protocol"
)

// SharedObject is one placed furniture item. Layer values are unique across
// live objects but need not be contiguous; only their relative order matters.
type SharedObject struct {
	ID            string
	Kind          string
	X, Y          float64
	Layer         int64
	Flipped       bool
	On            bool
	OwnerIdentity string
	PlacedAt      time.Time
	LastTouchedAt time.Time
}

func (o *SharedObject) view() protocol.ObjectView {
	return protocol.ObjectView{
		ID:            o.ID,
		Kind:          o.Kind,
		X:             o.X,
		Y:             o.Y,
		Layer:         o.Layer,
		Flipped:       o.Flipped,
		On:            o.On,
		OwnerIdentity: o.OwnerIdentity,
		PlacedAt:      o.PlacedAt.Unix(),
		LastTouchedAt: o.LastTouchedAt.Unix(),
	}
}

// newObjectID derives an id from the placing session and the creation time,
// suffixing on the rare same-nanosecond collision.
func (w *World) newObjectID(sessionID string, now time.Time) string {
	base := sessionID
	if len(base) > 8 {
		base = base[:8]
	}
	id := fmt.Sprintf("o_%s_%d", base, now.UnixNano())
	for n := 1; ; n++ {
		if _, taken := w.objects[id]; !taken {
			return id
		}
		id = fmt.Sprintf("o_%s_%d_%d", base, now.UnixNano(), n)
	}
}

// placeObject creates a new object on the top layer. The caller has already
// passed the placement quota check.
func (w *World) placeObject(sessionID, ownerIdentity, kind string, x, y float64, now time.Time) *SharedObject {
	o := &SharedObject{
		ID:            w.newObjectID(sessionID, now),
		Kind:          kind,
		X:             x,
		Y:             y,
		Layer:         w.nextLayer,
		OwnerIdentity: ownerIdentity,
		PlacedAt:      now,
		LastTouchedAt: now,
	}
	w.nextLayer++
	w.objects[o.ID] = o
	return o
}

// moveObject is last-writer-wins: two sessions dragging the same object
// concurrently simply overwrite each other's latest position. That race is
// part of the contract, not a bug.
func (w *World) moveObject(id string, x, y float64, flipped *bool, now time.Time) *SharedObject {
	o := w.objects[id]
	if o == nil {
		return nil
	}
	o.X = x
	o.Y = y
	if flipped != nil {
		o.Flipped = *flipped
	}
	o.LastTouchedAt = now
	return o
}

// reorderUp swaps the object's layer value with the nearest object above it.
// The multiset of layer values in use never changes; with no neighbour the
// call is a no-op.
func (w *World) reorderUp(id string, now time.Time) (*SharedObject, *SharedObject) {
	o := w.objects[id]
	if o == nil {
		return nil, nil
	}
	var neighbor *SharedObject
	for _, other := range w.objects {
		if other.Layer <= o.Layer {
			continue
		}
		if neighbor == nil || other.Layer < neighbor.Layer {
			neighbor = other
		}
	}
	return swapLayers(o, neighbor, now)
}

// reorderDown mirrors reorderUp toward the nearest object below.
func (w *World) reorderDown(id string, now time.Time) (*SharedObject, *SharedObject) {
	o := w.objects[id]
	if o == nil {
		return nil, nil
	}
	var neighbor *SharedObject
	for _, other := range w.objects {
		if other.Layer >= o.Layer {
			continue
		}
		if neighbor == nil || other.Layer > neighbor.Layer {
			neighbor = other
		}
	}
	return swapLayers(o, neighbor, now)
}

func swapLayers(o, neighbor *SharedObject, now time.Time) (*SharedObject, *SharedObject) {
	if neighbor == nil {
		return nil, nil
	}
	o.Layer, neighbor.Layer = neighbor.Layer, o.Layer
	o.LastTouchedAt = now
	neighbor.LastTouchedAt = now
	return o, neighbor
}

func (w *World) flipObject(id string, now time.Time) *SharedObject {
	o := w.objects[id]
	if o == nil {
		return nil
	}
	o.Flipped = !o.Flipped
	o.LastTouchedAt = now
	return o
}

func (w *World) toggleObject(id string, now time.Time) *SharedObject {
	o := w.objects[id]
	if o == nil {
		return nil
	}
	o.On = !o.On
	o.LastTouchedAt = now
	return o
}

// deleteObject removes the object. There is deliberately no ownership check:
// the space is a shared sandbox and any session may delete any object.
func (w *World) deleteObject(id string) *SharedObject {
	o := w.objects[id]
	if o == nil {
		return nil
	}
	delete(w.objects, id)
	return o
}

// rederiveNextLayer recomputes the layer counter from live objects. Run at
// startup so a stale persisted counter can never hand out a duplicate.
func (w *World) rederiveNextLayer() {
	var max int64
	for _, o := range w.objects {
		if o.Layer > max {
			max = o.Layer
		}
	}
	w.nextLayer = max + 1
}

func (w *World) objectViews() []protocol.ObjectView {
	views := make([]protocol.ObjectView, 0, len(w.objects))
	for _, o := range w.objects {
		views = append(views, o.view())
	}
	return views
}
