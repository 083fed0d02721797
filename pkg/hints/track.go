package hints

// Dimension is a desired decode/render resolution.
// Height is declared first so the wire encoding orders it before width.
type Dimension struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Dim returns a pointer to a Dimension, for use in a Patch.
func Dim(width, height int) *Dimension {
	return &Dimension{Width: width, Height: height}
}

// Bool returns a pointer to v, for use in a Patch.
func Bool(v bool) *bool {
	return &v
}

// Patch is a partial update of a track's hint. Nil fields leave the stored
// value unchanged.
type Patch struct {
	Enabled         *bool
	RenderDimension *Dimension
}

// TrackHintState is the locally desired rendering state of one track.
// Nil fields have never been set.
type TrackHintState struct {
	TrackSID        string
	Enabled         *bool
	RenderDimension *Dimension
}

// merge applies p to the state. Fields absent from p are kept.
func (t *TrackHintState) merge(p Patch) {
	if p.Enabled != nil {
		v := *p.Enabled
		t.Enabled = &v
	}
	if p.RenderDimension != nil {
		d := *p.RenderDimension
		t.RenderDimension = &d
	}
}

// clone returns a deep copy that shares no pointers with t.
func (t *TrackHintState) clone() TrackHintState {
	c := TrackHintState{TrackSID: t.TrackSID}
	if t.Enabled != nil {
		v := *t.Enabled
		c.Enabled = &v
	}
	if t.RenderDimension != nil {
		d := *t.RenderDimension
		c.RenderDimension = &d
	}
	return c
}

// Hint returns the wire form of the state. Optional fields are present if
// and only if they were ever set.
func (t *TrackHintState) Hint() Hint {
	c := t.clone()
	return Hint{
		TrackSID:        c.TrackSID,
		Enabled:         c.Enabled,
		RenderDimension: c.RenderDimension,
	}
}

// dirtySet is an insertion-ordered set of track SIDs.
type dirtySet struct {
	order []string
	index map[string]struct{}
}

func newDirtySet() *dirtySet {
	return &dirtySet{index: make(map[string]struct{})}
}

// add appends sid unless already present; a present sid keeps its position.
func (d *dirtySet) add(sid string) {
	if _, ok := d.index[sid]; ok {
		return
	}
	d.index[sid] = struct{}{}
	d.order = append(d.order, sid)
}

func (d *dirtySet) has(sid string) bool {
	_, ok := d.index[sid]
	return ok
}

func (d *dirtySet) remove(sid string) {
	if _, ok := d.index[sid]; !ok {
		return
	}
	delete(d.index, sid)
	for i, s := range d.order {
		if s == sid {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// removeAll removes every sid in sids.
func (d *dirtySet) removeAll(sids []string) {
	for _, sid := range sids {
		d.remove(sid)
	}
}

// prepend puts sids in front of the current members, in order. Sids already
// present are moved to the front as well.
func (d *dirtySet) prepend(sids []string) {
	if len(sids) == 0 {
		return
	}
	order := make([]string, 0, len(sids)+len(d.order))
	seen := make(map[string]struct{}, len(sids)+len(d.order))
	for _, sid := range sids {
		if _, ok := seen[sid]; ok {
			continue
		}
		seen[sid] = struct{}{}
		order = append(order, sid)
	}
	for _, sid := range d.order {
		if _, ok := seen[sid]; ok {
			continue
		}
		seen[sid] = struct{}{}
		order = append(order, sid)
	}
	d.order = order
	d.index = seen
}

func (d *dirtySet) len() int {
	return len(d.order)
}

// snapshot returns a copy of the members in insertion order.
func (d *dirtySet) snapshot() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}
