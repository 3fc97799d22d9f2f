package db

import (
	"database/sql"
	"fmt"
)

// Source kinds understood by the capture controller.
const (
	SourceKindSerial = "serial"
	SourceKindMQTT   = "mqtt"
	SourceKindSim    = "sim"
)

// SourceConfig represents a named sample source the capture controller
// can start: a serial IMU link, an MQTT ingest topic, or the built-in
// simulator. Serial fields are ignored for non-serial kinds, as is
// Topic for non-MQTT kinds.
type SourceConfig struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	PortPath    string `json:"port_path"`
	BaudRate    int    `json:"baud_rate"`
	DataBits    int    `json:"data_bits"`
	StopBits    int    `json:"stop_bits"`
	Parity      string `json:"parity"`
	Topic       string `json:"topic"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func validSourceKind(kind string) bool {
	switch kind {
	case SourceKindSerial, SourceKindMQTT, SourceKindSim:
		return true
	}
	return false
}

// GetSourceConfigs returns all source configurations
func (db *DB) GetSourceConfigs() ([]SourceConfig, error) {
	query := `SELECT id, name, kind, port_path, baud_rate, data_bits, stop_bits, parity, topic, enabled, description, created_at, updated_at
	          FROM source_config
	          ORDER BY created_at ASC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query source configs: %w", err)
	}
	defer rows.Close()

	var configs []SourceConfig
	for rows.Next() {
		var c SourceConfig
		var enabled int
		err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.PortPath, &c.BaudRate, &c.DataBits, &c.StopBits,
			&c.Parity, &c.Topic, &enabled, &c.Description, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source config: %w", err)
		}
		c.Enabled = enabled == 1
		configs = append(configs, c)
	}

	return configs, nil
}

// GetSourceConfig returns a single source configuration by ID
func (db *DB) GetSourceConfig(id int) (*SourceConfig, error) {
	query := `SELECT id, name, kind, port_path, baud_rate, data_bits, stop_bits, parity, topic, enabled, description, created_at, updated_at
	          FROM source_config
	          WHERE id = ?`

	var c SourceConfig
	var enabled int
	err := db.QueryRow(query, id).Scan(&c.ID, &c.Name, &c.Kind, &c.PortPath, &c.BaudRate, &c.DataBits,
		&c.StopBits, &c.Parity, &c.Topic, &enabled, &c.Description, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source config: %w", err)
	}

	c.Enabled = enabled == 1
	return &c, nil
}

// GetEnabledSourceConfigs returns all enabled source configurations
func (db *DB) GetEnabledSourceConfigs() ([]SourceConfig, error) {
	query := `SELECT id, name, kind, port_path, baud_rate, data_bits, stop_bits, parity, topic, enabled, description, created_at, updated_at
	          FROM source_config
	          WHERE enabled = 1
	          ORDER BY created_at ASC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled source configs: %w", err)
	}
	defer rows.Close()

	var configs []SourceConfig
	for rows.Next() {
		var c SourceConfig
		var enabled int
		err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.PortPath, &c.BaudRate, &c.DataBits, &c.StopBits,
			&c.Parity, &c.Topic, &enabled, &c.Description, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source config: %w", err)
		}
		c.Enabled = enabled == 1
		configs = append(configs, c)
	}

	return configs, nil
}

// CreateSourceConfig creates a new source configuration
func (db *DB) CreateSourceConfig(c *SourceConfig) (int64, error) {
	if !validSourceKind(c.Kind) {
		return 0, fmt.Errorf("invalid source kind %q", c.Kind)
	}

	query := `INSERT INTO source_config (name, kind, port_path, baud_rate, data_bits, stop_bits, parity, topic, enabled, description)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	enabled := 0
	if c.Enabled {
		enabled = 1
	}

	result, err := db.Exec(query, c.Name, c.Kind, c.PortPath, c.BaudRate, c.DataBits, c.StopBits,
		c.Parity, c.Topic, enabled, c.Description)
	if err != nil {
		return 0, fmt.Errorf("failed to create source config: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// UpdateSourceConfig updates an existing source configuration
func (db *DB) UpdateSourceConfig(c *SourceConfig) error {
	if !validSourceKind(c.Kind) {
		return fmt.Errorf("invalid source kind %q", c.Kind)
	}

	query := `UPDATE source_config
	          SET name = ?, kind = ?, port_path = ?, baud_rate = ?, data_bits = ?, stop_bits = ?,
	              parity = ?, topic = ?, enabled = ?, description = ?, updated_at = strftime('%s','now')
	          WHERE id = ?`

	enabled := 0
	if c.Enabled {
		enabled = 1
	}

	result, err := db.Exec(query, c.Name, c.Kind, c.PortPath, c.BaudRate, c.DataBits, c.StopBits,
		c.Parity, c.Topic, enabled, c.Description, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update source config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("source config with ID %d not found", c.ID)
	}

	return nil
}

// DeleteSourceConfig deletes a source configuration
func (db *DB) DeleteSourceConfig(id int) error {
	query := `DELETE FROM source_config WHERE id = ?`

	result, err := db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete source config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("source config with ID %d not found", id)
	}

	return nil
}
