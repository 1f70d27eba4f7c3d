package fork

import "testing"

func TestFork_NewIsDirty(t *testing.T) {
	f := New(3)
	if f.ID != 3 {
		t.Errorf("Expected id 3, got %d", f.ID)
	}
	if !f.Dirty {
		t.Error("New fork should start dirty")
	}
}

func TestFork_CleanSoilCopies(t *testing.T) {
	f := New(1)
	c := f.Clean()
	if c.Dirty {
		t.Error("Clean should clear the dirty flag")
	}
	if !f.Dirty {
		t.Error("Clean should not modify the receiver")
	}
	if !c.Soil().Dirty {
		t.Error("Soil should set the dirty flag")
	}
}

func TestSide_Opposite(t *testing.T) {
	if Left.Opposite() != Right || Right.Opposite() != Left {
		t.Error("Opposite should swap sides")
	}
	if Left.String() != "LEFT" || Right.String() != "RIGHT" {
		t.Errorf("Unexpected side names: %s, %s", Left, Right)
	}
}
