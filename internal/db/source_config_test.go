package db

import (
	"testing"
)

func TestSourceConfig(t *testing.T) {
	db := newTestDB(t)

	// The migration seeds the built-in simulator source.
	configs, err := db.GetSourceConfigs()
	if err != nil {
		t.Fatalf("Failed to get source configs: %v", err)
	}

	if len(configs) != 1 {
		t.Fatalf("Expected 1 default config, got %d", len(configs))
	}

	defaultConfig := configs[0]
	if defaultConfig.Name != "Built-in simulator" {
		t.Errorf("Expected default config name 'Built-in simulator', got '%s'", defaultConfig.Name)
	}
	if defaultConfig.Kind != SourceKindSim {
		t.Errorf("Expected default kind 'sim', got '%s'", defaultConfig.Kind)
	}
	if !defaultConfig.Enabled {
		t.Error("Expected default config to be enabled")
	}

	// Test CreateSourceConfig
	newConfig := &SourceConfig{
		Name:        "Wrist IMU #1",
		Kind:        SourceKindSerial,
		PortPath:    "/dev/ttyUSB0",
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		Enabled:     true,
		Description: "USB-connected IMU breakout",
	}

	id, err := db.CreateSourceConfig(newConfig)
	if err != nil {
		t.Fatalf("Failed to create source config: %v", err)
	}

	if id <= 0 {
		t.Errorf("Expected positive ID, got %d", id)
	}

	// Test GetSourceConfig
	retrieved, err := db.GetSourceConfig(int(id))
	if err != nil {
		t.Fatalf("Failed to get source config by ID: %v", err)
	}

	if retrieved == nil {
		t.Fatal("Expected to retrieve config, got nil")
	}

	if retrieved.Name != newConfig.Name {
		t.Errorf("Expected name '%s', got '%s'", newConfig.Name, retrieved.Name)
	}
	if retrieved.PortPath != newConfig.PortPath {
		t.Errorf("Expected port '%s', got '%s'", newConfig.PortPath, retrieved.PortPath)
	}

	// Test GetEnabledSourceConfigs
	enabledConfigs, err := db.GetEnabledSourceConfigs()
	if err != nil {
		t.Fatalf("Failed to get enabled source configs: %v", err)
	}

	if len(enabledConfigs) != 2 {
		t.Fatalf("Expected 2 enabled configs, got %d", len(enabledConfigs))
	}

	// Test UpdateSourceConfig
	retrieved.Description = "Updated description"
	retrieved.Enabled = false
	err = db.UpdateSourceConfig(retrieved)
	if err != nil {
		t.Fatalf("Failed to update source config: %v", err)
	}

	updated, err := db.GetSourceConfig(int(id))
	if err != nil {
		t.Fatalf("Failed to get updated config: %v", err)
	}

	if updated.Description != "Updated description" {
		t.Errorf("Expected updated description, got '%s'", updated.Description)
	}
	if updated.Enabled {
		t.Error("Expected config to be disabled")
	}

	// Verify only the default remains enabled
	enabledConfigs, err = db.GetEnabledSourceConfigs()
	if err != nil {
		t.Fatalf("Failed to get enabled source configs after update: %v", err)
	}
	if len(enabledConfigs) != 1 {
		t.Fatalf("Expected 1 enabled config after disabling, got %d", len(enabledConfigs))
	}

	// Test DeleteSourceConfig
	if err := db.DeleteSourceConfig(int(id)); err != nil {
		t.Fatalf("Failed to delete source config: %v", err)
	}

	deleted, err := db.GetSourceConfig(int(id))
	if err != nil {
		t.Fatalf("Failed to query deleted config: %v", err)
	}
	if deleted != nil {
		t.Error("Expected nil for deleted config")
	}
}

func TestGetSourceConfig_Missing(t *testing.T) {
	db := newTestDB(t)

	config, err := db.GetSourceConfig(9999)
	if err != nil {
		t.Fatalf("GetSourceConfig failed: %v", err)
	}
	if config != nil {
		t.Errorf("Expected nil for missing config, got %+v", config)
	}
}

func TestUpdateSourceConfig_Missing(t *testing.T) {
	db := newTestDB(t)

	missing := &SourceConfig{ID: 9999, Name: "ghost", Kind: SourceKindSerial}
	if err := db.UpdateSourceConfig(missing); err == nil {
		t.Error("Expected error updating missing config")
	}
}

func TestDeleteSourceConfig_Missing(t *testing.T) {
	db := newTestDB(t)

	if err := db.DeleteSourceConfig(9999); err == nil {
		t.Error("Expected error deleting missing config")
	}
}

func TestSourceConfig_InvalidKind(t *testing.T) {
	db := newTestDB(t)

	bad := &SourceConfig{Name: "bad", Kind: "carrier-pigeon"}
	if _, err := db.CreateSourceConfig(bad); err == nil {
		t.Error("Expected error creating config with invalid kind")
	}

	if err := db.UpdateSourceConfig(&SourceConfig{ID: 1, Name: "bad", Kind: "carrier-pigeon"}); err == nil {
		t.Error("Expected error updating config to invalid kind")
	}
}

func TestSourceConfig_DuplicateName(t *testing.T) {
	db := newTestDB(t)

	first := &SourceConfig{Name: "phone", Kind: SourceKindMQTT, Topic: "phone/accel"}
	if _, err := db.CreateSourceConfig(first); err != nil {
		t.Fatalf("Failed to create first config: %v", err)
	}

	second := &SourceConfig{Name: "phone", Kind: SourceKindMQTT, Topic: "phone2/accel"}
	if _, err := db.CreateSourceConfig(second); err == nil {
		t.Error("Expected error creating config with duplicate name")
	}
}
