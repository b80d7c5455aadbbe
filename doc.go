// Package reel implements the render-engine core of a browser-based
// motion-graphics compositor: a DAG effect graph evaluator, a GPU
// texture/resource pool, a frame-source decoding and caching layer, and
// node-level render orchestration.
//
// The root package holds types shared across every sub-package: color,
// affine transforms, the shared error taxonomy, and the process-wide
// logger. Sub-packages implement the individual components:
//
//	graph       scene graph / layer / asset data model
//	store       content-addressed frame blob storage
//	decode      media demuxing and frame decoding
//	framecache  decoded-frame LRU cache
//	gpu         GPU context abstraction (texture/shader lifecycle)
//	texturepool bucketed GPU texture pool
//	effects     effect registry and built-in effects
//	pipeline    DAG render pipeline evaluator
//	broker      composite output broker
//	noderender  per-node render orchestration
package reel
