package graph

// TimeRange binds a Layer's active window on the composition timeline
// to an offset into its Asset. Frames are non-negative integers,
// inclusive start, exclusive end (§9 open question (a): this spec pins
// exclusive-end).
type TimeRange struct {
	InFrame      uint64
	OutFrame     uint64
	SourceOffset uint64
}

// Layer is a time-bound reference to an Asset plus a base transform.
// Layers are owned by the editor; the core holds only this read-only
// view (§3).
type Layer struct {
	ID        string
	AssetID   string
	TimeRange TimeRange
	Transform BaseTransform
}

// AssetKind is the closed set of renderable leaf asset kinds this core
// handles directly. Composition assets (own scene graph) are out of
// scope for the core (§3) and are not modeled here.
type AssetKind uint8

const (
	AssetVideo AssetKind = iota
	AssetImage
	AssetImageSequence
)

// Asset describes one of Video, Image, or Image Sequence (§3). Shape and
// Composition assets are out of scope for this core.
type Asset struct {
	ID     string
	Kind   AssetKind
	Width  int
	Height int

	// Video / Image Sequence only.
	FrameRate  float64
	FrameCount uint64

	// Video only.
	MIMEType    string
	EncodedPath string // Frame Store path to the original encoded blob

	// Image only.
	ImagePath string // Frame Store path to the single image blob
}

// MapGlobalFrameToSource maps a composition-level global frame g to a
// source-frame index via the layer's time range (§6). Returns ok=false
// if g falls outside [inFrame, outFrame).
func MapGlobalFrameToSource(g uint64, tr TimeRange, frameCount uint64) (source uint64, ok bool) {
	if g < tr.InFrame || g >= tr.OutFrame {
		return 0, false
	}
	s := tr.SourceOffset + (g - tr.InFrame)
	if frameCount > 0 && s >= frameCount {
		s = frameCount - 1
	}
	return s, true
}
