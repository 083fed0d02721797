package hints

import "testing"

func TestDirtySet_Order(t *testing.T) {
	d := newDirtySet()
	d.add("a")
	d.add("b")
	d.add("a") // keeps position
	d.add("c")

	if got := d.snapshot(); !equalStrings(got, []string{"a", "b", "c"}) {
		t.Fatalf("snapshot() = %v, want [a b c]", got)
	}

	d.remove("b")
	d.remove("missing")
	if got := d.snapshot(); !equalStrings(got, []string{"a", "c"}) {
		t.Fatalf("after remove snapshot() = %v, want [a c]", got)
	}
	if d.has("b") {
		t.Error("has(b) = true after remove")
	}
}

func TestDirtySet_RemoveAll(t *testing.T) {
	d := newDirtySet()
	for _, s := range []string{"a", "b", "c", "d"} {
		d.add(s)
	}

	snap := d.snapshot()
	d.add("e") // marked after the snapshot
	d.removeAll(snap)

	if got := d.snapshot(); !equalStrings(got, []string{"e"}) {
		t.Fatalf("snapshot() = %v, want [e]", got)
	}
	if d.len() != 1 {
		t.Errorf("len() = %d, want 1", d.len())
	}
}

func TestDirtySet_Prepend(t *testing.T) {
	tests := []struct {
		name    string
		initial []string
		prepend []string
		want    []string
	}{
		{"into empty", nil, []string{"a", "b"}, []string{"a", "b"}},
		{"before newer", []string{"c"}, []string{"a", "b"}, []string{"a", "b", "c"}},
		{"overlap moves front", []string{"c", "a"}, []string{"a", "b"}, []string{"a", "b", "c"}},
		{"nothing", []string{"c"}, nil, []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDirtySet()
			for _, s := range tt.initial {
				d.add(s)
			}
			d.prepend(tt.prepend)

			if got := d.snapshot(); !equalStrings(got, tt.want) {
				t.Errorf("snapshot() = %v, want %v", got, tt.want)
			}
			for _, s := range tt.want {
				if !d.has(s) {
					t.Errorf("has(%s) = false", s)
				}
			}
		})
	}
}

func TestTrackHintState_MergeCopies(t *testing.T) {
	dim := Dimension{Width: 10, Height: 20}
	enabled := true

	state := TrackHintState{TrackSID: "t"}
	state.merge(Patch{Enabled: &enabled, RenderDimension: &dim})

	// Caller-owned values must not alias stored state.
	dim.Width = 99
	enabled = false

	if state.RenderDimension.Width != 10 {
		t.Errorf("Width = %d, want 10", state.RenderDimension.Width)
	}
	if !*state.Enabled {
		t.Error("Enabled = false, want true")
	}
}
