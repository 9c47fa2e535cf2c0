package ps

import (
	"fmt"
	"path"

	"github.com/nickyhof/orpheusplus/core"
)

const groupsDir = "groups"

func TableDir(database, table string) string {
	return path.Join(database, table)
}

func SchemaPath(database, table string) string {
	return path.Join(database, table, "schema.json")
}

func GraphPath(database, table string) string {
	return path.Join(database, table, "graph.json")
}

func LogPath(database, table string) string {
	return path.Join(database, table, "log")
}

func LedgerDir(database, table string) string {
	return path.Join(database, table, "ledger")
}

func LedgerPath(database, table, user string, head core.VersionID) string {
	return path.Join(database, table, "ledger", user, fmt.Sprintf("%d.json", head))
}

func GroupsDir(database string) string {
	return path.Join(database, groupsDir)
}

func GroupPath(database, group string) string {
	return path.Join(database, groupsDir, group+".json")
}
