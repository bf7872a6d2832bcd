package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %q, want %q", got, want)
	}
}

func TestCardHash_NormalizationKeepsIdentity(t *testing.T) {
	a := CardHash("  What is Go? \r\nA language\n")
	b := CardHash("what is go?\n\n  a language")
	if a != b {
		t.Errorf("hashes differ after normalization: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("len = %d, want 16", len(a))
	}
}

func TestCardHash_Empty(t *testing.T) {
	if got := CardHash(" \n\t"); got != "" {
		t.Errorf("blank text hash = %q, want empty", got)
	}
}

func TestCardHash_DifferentText(t *testing.T) {
	if CardHash("card one") == CardHash("card two") {
		t.Error("different cards must not share a hash")
	}
}
