// Package store runs statements against the relational engine that holds
// the physical tables of versioned tables: DuckDB, embedded, or MySQL.
//
// Every physical table starts with a rid BIGINT column. History tables key
// it; working copies do not. The membership table maps each version to the
// rids it contains and backs graph.Membership.
package store
