// Package merge three-way merges two versions of a table.
//
// A merge first replays each branch's operations since the lowest common
// ancestor into per-row terminal states. Rows both branches changed into
// different states are conflicts: without a Resolution the engine returns a
// Report and changes nothing, with one it builds the merged membership,
// commits it as a child of the head and records a merge edge from the
// other version.
package merge
