package dwarfcfi

import (
	"bytes"
	"testing"
)

func TestULEB128RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40}

	for _, v := range cases {
		var buf bytes.Buffer

		AppendULEB128(&buf, v)

		got, n := DecodeULEB128(buf.Bytes(), 0)
		if got != v {
			t.Errorf("ULEB128(%d): round-trip got %d", v, got)
		}

		if n != buf.Len() {
			t.Errorf("ULEB128(%d): decoded %d bytes, wrote %d", v, n, buf.Len())
		}
	}
}

func TestSLEB128RoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 63, -64, 300, -300, 1 << 30, -(1 << 30)}

	for _, v := range cases {
		var buf bytes.Buffer

		AppendSLEB128(&buf, v)

		got, n := DecodeSLEB128(buf.Bytes(), 0)
		if got != v {
			t.Errorf("SLEB128(%d): round-trip got %d", v, got)
		}

		if n != buf.Len() {
			t.Errorf("SLEB128(%d): decoded %d bytes, wrote %d", v, n, buf.Len())
		}
	}
}

func TestBuildSingleTryRegionProducesOneTypeEntry(t *testing.T) {
	regions := []TryRegion{
		{
			StartPC: 10, Length: 20,
			Handlers: []CatchHandler{{TypeSymbol: "_ZTIi", LandingPadPC: 40}},
		},
	}

	lsda := Build(regions, 100)

	if len(lsda.TypeSymbols) != 1 || lsda.TypeSymbols[0] != "_ZTIi" {
		t.Fatalf("expected one type symbol _ZTIi, got %v", lsda.TypeSymbols)
	}

	if len(lsda.Bytes) == 0 {
		t.Fatal("expected non-empty LSDA bytes")
	}
}

func TestBuildDedupsRepeatedTypeSymbol(t *testing.T) {
	regions := []TryRegion{
		{StartPC: 0, Length: 10, Handlers: []CatchHandler{{TypeSymbol: "_ZTIi", LandingPadPC: 20}}},
		{StartPC: 10, Length: 10, Handlers: []CatchHandler{{TypeSymbol: "_ZTIi", LandingPadPC: 20}}},
	}

	lsda := Build(regions, 30)

	if len(lsda.TypeSymbols) != 1 {
		t.Fatalf("expected the repeated type symbol to be deduped, got %v", lsda.TypeSymbols)
	}
}

func TestBuildCatchAllProducesNoTypeEntry(t *testing.T) {
	regions := []TryRegion{
		{StartPC: 0, Length: 10, Handlers: []CatchHandler{{IsCatchAll: true, LandingPadPC: 20}}},
	}

	lsda := Build(regions, 10)

	if len(lsda.TypeSymbols) != 0 {
		t.Fatalf("expected no type symbols for a catch-all, got %v", lsda.TypeSymbols)
	}
}
