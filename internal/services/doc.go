// Package services aggregates promptd's service instances behind one
// registry, so transport layers depend on a single seam instead of each
// collaborator individually.
package services
