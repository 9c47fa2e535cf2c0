package db

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/ps"
	"github.com/nickyhof/orpheusplus/store"
)

// setupBenchmarkTable creates an employee table with one committed version
// of n rows.
func setupBenchmarkTable(b *testing.B, n int) (*Engine, *Table) {
	b.Helper()
	engine, err := store.Open("duckdb", "")
	if err != nil {
		b.Fatalf("Failed to open storage engine: %v", err)
	}
	b.Cleanup(func() { engine.Close() })
	persistence, err := ps.NewMemoryPersistence()
	if err != nil {
		b.Fatalf("Failed to initialize persistence: %v", err)
	}

	e := NewEngine(persistence, engine, core.Identity{Name: "benchmark", Email: "bench@test.com"}, "bench")
	table, err := e.Init("employee", employeeColumns)
	if err != nil {
		b.Fatalf("Failed to init table: %v", err)
	}
	if _, err := table.Insert(benchmarkRows(0, n)); err != nil {
		b.Fatalf("Failed to insert rows: %v", err)
	}
	if _, err := table.Commit("seed", time.Time{}); err != nil {
		b.Fatalf("Failed to commit: %v", err)
	}
	return e, table
}

func benchmarkRows(offset, n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		id := offset + i + 1
		rows[i] = []string{fmt.Sprint(id), fmt.Sprintf("user%d", id), fmt.Sprint(20 + id%50)}
	}
	return rows
}

func BenchmarkInsertCommit(b *testing.B) {
	_, table := setupBenchmarkTable(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := table.Insert(benchmarkRows(1000+i*100, 100)); err != nil {
			b.Fatalf("Insert error: %v", err)
		}
		if _, err := table.Commit(fmt.Sprintf("batch %d", i), time.Time{}); err != nil {
			b.Fatalf("Commit error: %v", err)
		}
	}
}

func BenchmarkSelectVersion(b *testing.B) {
	engine, _ := setupBenchmarkTable(b, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Execute("SELECT * FROM VTABLE employee OF VERSION 1 WHERE age > 30"); err != nil {
			b.Fatalf("Query error: %v", err)
		}
	}
}

func BenchmarkCheckout(b *testing.B) {
	_, table := setupBenchmarkTable(b, 1000)
	if _, err := table.Delete(benchmarkRows(0, 500)); err != nil {
		b.Fatalf("Delete error: %v", err)
	}
	if _, err := table.Commit("halve", time.Time{}); err != nil {
		b.Fatalf("Commit error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := table.Checkout(core.VersionID(1 + i%2)); err != nil {
			b.Fatalf("Checkout error: %v", err)
		}
	}
}

func BenchmarkExecute(b *testing.B) {
	engine, _ := setupBenchmarkTable(b, 10)
	queries := []string{
		"SELECT * FROM VTABLE employee",
		"SELECT name FROM VTABLE employee OF VERSION 1 WHERE age > 30 ORDER BY name",
		"INSERT INTO VTABLE employee VALUES " + strings.Repeat("(1, 'a', 2), ", 99) + "(1, 'a', 2)",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, q := range queries {
			if _, err := engine.Execute(q); err != nil {
				b.Fatalf("Execute error: %v", err)
			}
		}
	}
}
