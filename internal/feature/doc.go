// Package feature defines the descriptor and match value types shared by the
// database and the matching pipeline, together with the reference CPU
// implementation of SIFT descriptor matching.
package feature
