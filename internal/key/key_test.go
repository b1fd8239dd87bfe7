package key

import "testing"

func TestTagRoundTrip(t *testing.T) {
	var k Key
	k.H[0], k.H[1], k.H[2] = 1, 2, 3
	k = k.WithTags(0x5A5A5A, Engine, Draw)
	if got := k.ReverseMove(); got != 0x5A5A5A {
		t.Fatalf("ReverseMove() = %x, want %x", got, 0x5A5A5A)
	}
	if k.Level() != Engine {
		t.Fatalf("Level() = %v, want Engine", k.Level())
	}
	if k.Result() != Draw {
		t.Fatalf("Result() = %v, want Draw", k.Result())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	k := Key{H: [4]uint32{0xdeadbeef, 1, 2, 3}}
	buf := make([]byte, Size)
	k.Encode(buf)
	got := Decode(buf)
	if got != k {
		t.Fatalf("Decode(Encode(k)) = %+v, want %+v", got, k)
	}
}

func TestOrderings(t *testing.T) {
	base := Key{H: [4]uint32{1, 2, 3, 0}}
	sameBoard := base.WithTags(5, Human, Win)
	sameBoardDiffMove := base.WithTags(6, Human, Win)
	diffBoard := Key{H: [4]uint32{1, 2, 4, 0}}

	if !EqualRM(sameBoard, sameBoardDiffMove) {
		t.Fatalf("expected K-rm equality across differing reverse move")
	}
	if EqualWRM(sameBoard, sameBoardDiffMove) {
		t.Fatalf("expected K+rm inequality across differing reverse move")
	}
	if CompareRM(sameBoard, diffBoard) >= 0 {
		t.Fatalf("expected sameBoard < diffBoard under K-rm")
	}
	if CompareFull(sameBoard, sameBoardDiffMove) >= 0 {
		t.Fatalf("expected sameBoard < sameBoardDiffMove under K-full (5 < 6)")
	}
}

func TestMatchesSelect(t *testing.T) {
	q := Key{H: [4]uint32{1, 2, 3, 0}}.WithTags(1, Human, Win)
	cont := Key{H: [4]uint32{1, 2, 3, 0}}.WithTags(1, Engine, Loss)
	transp := Key{H: [4]uint32{1, 2, 3, 0}}.WithTags(2, Engine, Loss)

	if !Matches(All, q, cont) || !Matches(All, q, transp) {
		t.Fatalf("All must keep every K-rm-equal candidate")
	}
	if !Matches(Continuations, q, cont) {
		t.Fatalf("Continuations must keep K+rm-equal candidate")
	}
	if Matches(Continuations, q, transp) {
		t.Fatalf("Continuations must drop differing reverse move")
	}
	if Matches(Transpositions, q, cont) {
		t.Fatalf("Transpositions must drop K+rm-equal candidate")
	}
	if !Matches(Transpositions, q, transp) {
		t.Fatalf("Transpositions must keep differing reverse move")
	}
}
