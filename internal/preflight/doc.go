// Package preflight provides readiness checks for the filesystem paths and
// services folio depends on.
//
// The daemon runs RunAll at startup and the health endpoint reports the same
// results. CheckFreeSpace also gates batch submission so a batch is never
// accepted onto a work volume that is already nearly full.
package preflight
