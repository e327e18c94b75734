// Package matching orchestrates feature matching across image pairs: it
// enumerates candidate pairs under the configured strategy, dispatches them
// to a pool of CPU or GPU matcher workers through job queues (the pool
// creates its queues with no capacity limit), and
// writes the resulting correspondences back to the database in per-batch
// transactions.
package matching
