// Package database persists the structure-from-motion workspace: cameras,
// images, per-image feature descriptors, and inter-image feature matches,
// backed by a single SQLite file. It is the source of truth for the matching
// pipeline and the sink its results are written back to.
package database
