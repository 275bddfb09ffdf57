package wallet

import (
	"errors"
	"testing"
)

func makeNotes(t *testing.T, amounts ...uint64) []Note {
	t.Helper()
	notes := make([]Note, len(amounts))
	for i, a := range amounts {
		notes[i] = testNote(t, a)
	}
	return notes
}

func TestSelectNotes_ExactMatch(t *testing.T) {
	notes := makeNotes(t, 1000, 2000, 3000)
	sel, err := SelectNotes(notes, 2000)
	if err != nil {
		t.Fatalf("SelectNotes: %v", err)
	}
	if sel.Total != 2000 {
		t.Errorf("total = %d, want 2000", sel.Total)
	}
	if sel.Change != 0 {
		t.Errorf("change = %d, want 0", sel.Change)
	}
	if len(sel.Notes) != 1 {
		t.Errorf("notes = %d, want 1 (exact single match)", len(sel.Notes))
	}
}

func TestSelectNotes_SingleNote(t *testing.T) {
	sel, err := SelectNotes(makeNotes(t, 5000), 3000)
	if err != nil {
		t.Fatalf("SelectNotes: %v", err)
	}
	if sel.Total != 5000 {
		t.Errorf("total = %d, want 5000", sel.Total)
	}
	if sel.Change != 2000 {
		t.Errorf("change = %d, want 2000", sel.Change)
	}
}

func TestSelectNotes_Accumulation(t *testing.T) {
	// No single note covers 4000, must combine largest-first.
	sel, err := SelectNotes(makeNotes(t, 1000, 2000, 1500), 4000)
	if err != nil {
		t.Fatalf("SelectNotes: %v", err)
	}
	if sel.Total != 4500 {
		t.Errorf("total = %d, want 4500", sel.Total)
	}
	if sel.Change != 500 {
		t.Errorf("change = %d, want 500", sel.Change)
	}
	if len(sel.Notes) != 3 {
		t.Errorf("notes = %d, want 3", len(sel.Notes))
	}
}

func TestSelectNotes_SmallestSingleWins(t *testing.T) {
	// Single 3000 gives zero change; accumulation would start at 5000.
	sel, err := SelectNotes(makeNotes(t, 5000, 3000, 1000), 3000)
	if err != nil {
		t.Fatalf("SelectNotes: %v", err)
	}
	if len(sel.Notes) != 1 || sel.Notes[0].Amount != 3000 {
		t.Errorf("selection = %+v, want single note of 3000", sel.Notes)
	}
}

func TestSelectNotes_Insufficient(t *testing.T) {
	_, err := SelectNotes(makeNotes(t, 100, 200), 1000)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestSelectNotes_Empty(t *testing.T) {
	if _, err := SelectNotes(nil, 100); !errors.Is(err, ErrNoNotes) {
		t.Errorf("err = %v, want ErrNoNotes", err)
	}
}

func TestSelectNotes_ZeroTarget(t *testing.T) {
	if _, err := SelectNotes(makeNotes(t, 100), 0); err == nil {
		t.Error("SelectNotes should reject a zero target")
	}
}

func TestSelectNotes_SkipsZeroValueNotes(t *testing.T) {
	sel, err := SelectNotes(makeNotes(t, 0, 0, 500), 500)
	if err != nil {
		t.Fatalf("SelectNotes: %v", err)
	}
	if len(sel.Notes) != 1 || sel.Notes[0].Amount != 500 {
		t.Error("zero-value notes should never be selected")
	}
}
