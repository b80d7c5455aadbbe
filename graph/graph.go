// Package graph models the editor's scene graph: nodes, edges, layers,
// and assets (§3). The core consumes a read-only view; ownership of the
// underlying state belongs to the (out of scope) editor.
package graph

// NodeKind identifies the closed set of scene node kinds (§3).
type NodeKind uint8

const (
	// NodeSource references a Layer; carries a static base transform;
	// no inputs, one output.
	NodeSource NodeKind = iota

	// NodeOperation is one of blur, color_correct, transform. One
	// input, one output, a parameter map, and an enabled flag.
	NodeOperation

	// NodeMerge is a composite node with named inputs bg and fg, one
	// output, and blend parameters.
	NodeMerge
)

// String returns a human-readable name for the node kind.
func (k NodeKind) String() string {
	switch k {
	case NodeSource:
		return "Source"
	case NodeOperation:
		return "Operation"
	case NodeMerge:
		return "Merge"
	default:
		return "Unknown"
	}
}

// OperationType names the fixed set of Operation node behaviors.
type OperationType string

// Recognized operation types.
const (
	OpBlur         OperationType = "blur"
	OpColorCorrect OperationType = "color_correct"
	OpTransform    OperationType = "transform"
)

// NodeID identifies a scene graph node.
type NodeID string

// BaseTransform is a Source node's static per-frame placement: translate,
// scale, anchor, rotation, opacity. Keyframing is out of scope (§1
// Non-goals); these values are constant for the node's lifetime.
type BaseTransform struct {
	X, Y        float64
	ScaleX      float64
	ScaleY      float64
	AnchorX     float64
	AnchorY     float64
	RotationRad float64
	Opacity     float64
}

// Normalized returns t with the zero value promoted to the identity
// placement (unit scale, full opacity), so a node or layer built
// without an explicit transform renders its frame unchanged.
func (t BaseTransform) Normalized() BaseTransform {
	if t == (BaseTransform{}) {
		return BaseTransform{ScaleX: 1, ScaleY: 1, Opacity: 1}
	}
	return t
}

// Node is a tagged-variant scene graph node (§9: "a tagged-variant node
// type in an arena indexed by stable ids").
type Node struct {
	ID   NodeID
	Kind NodeKind

	// Source fields.
	LayerID   string
	Transform BaseTransform

	// Operation fields.
	Op      OperationType
	Enabled bool
	Params  map[string]any

	// Merge fields: blend mode, fg opacity, explicit fg size are carried
	// in Params using the same keys the effect registry expects
	// (u_mode, u_opacity, u_fgWidth, u_fgHeight), keeping one parameter
	// map shape across Operation and Merge nodes.
}

// EdgeSlot names a target node's named input slot. The empty string
// denotes the single unnamed input of an Operation node.
type EdgeSlot string

// Merge input slot names.
const (
	SlotBackground EdgeSlot = "bg"
	SlotForeground EdgeSlot = "fg"
)

// Edge connects a source node's output to a target node's input slot.
type Edge struct {
	SourceID NodeID
	TargetID NodeID
	Slot     EdgeSlot
}

// Graph is a read-only view of the scene graph: a node arena plus a flat
// edge list with a secondary by-target index (§9).
type Graph struct {
	nodes    map[NodeID]*Node
	edges    []Edge
	byTarget map[NodeID][]int // edge indices, in insertion order
}

// New builds a Graph from nodes and edges. The graph does not validate
// acyclicity or the per-node-kind edge-count invariants (§3) up front;
// NodeRenderer's upstream walk (package noderender) reports a missing
// node, a missing edge or a cycle as an incomplete resolution, matching how the editor may transiently hold an invalid graph
// mid-edit.
func New(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		nodes:    make(map[NodeID]*Node, len(nodes)),
		edges:    make([]Edge, len(edges)),
		byTarget: make(map[NodeID][]int, len(nodes)),
	}
	for i := range nodes {
		n := nodes[i]
		g.nodes[n.ID] = &n
	}
	copy(g.edges, edges)
	for i, e := range g.edges {
		g.byTarget[e.TargetID] = append(g.byTarget[e.TargetID], i)
	}
	return g
}

// Node returns the node with the given id, or nil if absent.
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[id]
}

// IncomingEdges returns the edges whose target is id, in insertion order.
func (g *Graph) IncomingEdges(id NodeID) []Edge {
	idxs := g.byTarget[id]
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = g.edges[idx]
	}
	return out
}

// IncomingEdge returns the single edge feeding slot on target, or false
// if none exists. Used for Operation nodes (unnamed slot) and Merge
// nodes' bg/fg slots, each of which the data model limits to at most
// one edge (§3 invariants).
func (g *Graph) IncomingEdge(target NodeID, slot EdgeSlot) (Edge, bool) {
	for _, e := range g.IncomingEdges(target) {
		if e.Slot == slot {
			return e, true
		}
	}
	return Edge{}, false
}
