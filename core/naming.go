package core

import "strings"

const (
	HistorySuffix    = "_orpheusplus"
	HeadSuffix       = "_orpheusplus_head"
	MembershipSuffix = "_orpheusplus_version"

	// RowIDColumn is the synthetic leading column of every physical table.
	RowIDColumn = "rid"
)

// HistoryTable returns the physical table holding every committed row of name.
func HistoryTable(name string) string {
	return name + HistorySuffix
}

// HeadTable returns the working copy of name for user.
func HeadTable(name, user string) string {
	return name + HeadSuffix + "_" + user
}

// MembershipTable returns the version to rid index of name.
func MembershipTable(name string) string {
	return name + MembershipSuffix
}

// IsInternalTable reports whether a physical table name belongs to a
// versioned table's storage.
func IsInternalTable(physical string) bool {
	return strings.HasSuffix(physical, HistorySuffix) ||
		strings.HasSuffix(physical, MembershipSuffix) ||
		strings.Contains(physical, HeadSuffix+"_")
}
