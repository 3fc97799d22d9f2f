package db

import (
	"database/sql"
	"fmt"
	"sort"
)

// TableStats describes one table for the db-stats debug report.
type TableStats struct {
	Name     string  `json:"name"`
	RowCount int64   `json:"row_count"`
	SizeMB   float64 `json:"size_mb"`
}

// DatabaseStats is the JSON payload of the /debug/db-stats route.
type DatabaseStats struct {
	TotalSizeMB float64      `json:"total_size_mb"`
	Tables      []TableStats `json:"tables"`
}

// GetDatabaseStats reports the database file size and per-table row
// counts, tables sorted largest first. Per-table sizes come from the
// dbstat virtual table and are zero when the SQLite build lacks it.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}

	stats := &DatabaseStats{
		TotalSizeMB: float64(pageCount*pageSize) / (1024 * 1024),
	}

	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close table listing: %w", err)
	}

	for _, name := range names {
		var count int64
		// Table names come from sqlite_master, not user input.
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		stats.Tables = append(stats.Tables, TableStats{
			Name:     name,
			RowCount: count,
			SizeMB:   db.tableSizeMB(name),
		})
	}

	sort.Slice(stats.Tables, func(i, j int) bool {
		if stats.Tables[i].SizeMB != stats.Tables[j].SizeMB {
			return stats.Tables[i].SizeMB > stats.Tables[j].SizeMB
		}
		if stats.Tables[i].RowCount != stats.Tables[j].RowCount {
			return stats.Tables[i].RowCount > stats.Tables[j].RowCount
		}
		return stats.Tables[i].Name < stats.Tables[j].Name
	})

	return stats, nil
}

// tableSizeMB sums a table's pages via dbstat. Requires a build with
// SQLITE_ENABLE_DBSTAT_VTAB; returns 0 when unavailable.
func (db *DB) tableSizeMB(name string) float64 {
	var bytes sql.NullInt64
	err := db.QueryRow("SELECT SUM(pgsize) FROM dbstat WHERE name = ?", name).Scan(&bytes)
	if err != nil || !bytes.Valid {
		return 0
	}
	return float64(bytes.Int64) / (1024 * 1024)
}
