package model

import "time"

// Studio and Tag parent references are resolved by internal/storage; this
// package only carries the IDs.

// Performer is a Catalog-assigned performer entity. Aliases are matched
// case-insensitively by detectors and the sync engine.
type Performer struct {
	ID         string
	Name       string
	Aliases    []string
	LastSynced time.Time
}

// Tag forms a DAG via ParentID (no cycles permitted).
type Tag struct {
	ID         string
	Name       string
	ParentID   *string
	LastSynced time.Time
}

// Studio forms a DAG via ParentID (no cycles permitted).
type Studio struct {
	ID         string
	Name       string
	ParentID   *string
	LastSynced time.Time
}
