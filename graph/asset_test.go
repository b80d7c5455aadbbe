package graph

import "testing"

func TestMapGlobalFrameToSourceBoundary(t *testing.T) {
	tr := TimeRange{InFrame: 10, OutFrame: 20, SourceOffset: 0}

	if _, ok := MapGlobalFrameToSource(9, tr, 100); ok {
		t.Errorf("g=9 (< inFrame) should be absent")
	}
	if _, ok := MapGlobalFrameToSource(20, tr, 100); ok {
		t.Errorf("g=20 (== outFrame) should be absent")
	}
	s, ok := MapGlobalFrameToSource(10, tr, 100)
	if !ok || s != tr.SourceOffset {
		t.Errorf("g=inFrame: got (%d,%v), want (%d,true)", s, ok, tr.SourceOffset)
	}
}

func TestMapGlobalFrameToSourceClampsToFrameCount(t *testing.T) {
	tr := TimeRange{InFrame: 0, OutFrame: 1000, SourceOffset: 5}
	s, ok := MapGlobalFrameToSource(500, tr, 10)
	if !ok {
		t.Fatalf("expected ok")
	}
	if s != 9 {
		t.Errorf("source index = %d, want clamped 9", s)
	}
}

func TestGraphIncomingEdge(t *testing.T) {
	nodes := []Node{
		{ID: "a", Kind: NodeSource},
		{ID: "m", Kind: NodeMerge},
	}
	edges := []Edge{
		{SourceID: "a", TargetID: "m", Slot: SlotBackground},
	}
	g := New(nodes, edges)

	e, ok := g.IncomingEdge("m", SlotBackground)
	if !ok || e.SourceID != "a" {
		t.Fatalf("IncomingEdge(bg) = %+v, %v", e, ok)
	}
	if _, ok := g.IncomingEdge("m", SlotForeground); ok {
		t.Errorf("expected no fg edge")
	}
}
