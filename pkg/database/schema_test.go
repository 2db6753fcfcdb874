package database

import "testing"

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	validator := NewSchemaValidator(openTestDB(t))

	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("ValidateTablesExist should fail on empty database")
	}
	if err := validator.ValidateIndexes(); err == nil {
		t.Error("ValidateIndexes should fail on empty database")
	}
}

func TestSchemaValidator_MigratedDatabase(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	validator := NewSchemaValidator(db)

	tests := []struct {
		name  string
		check func() error
	}{
		{"tables", validator.ValidateTablesExist},
		{"structure", validator.ValidateTableStructure},
		{"indexes", validator.ValidateIndexes},
		{"constraints", validator.ValidateConstraints},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.check(); err != nil {
				t.Errorf("%s validation failed: %v", tt.name, err)
			}
		})
	}
}

func TestSchemaValidator_WrongColumnType(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`
		CREATE TABLE sessions (id TEXT PRIMARY KEY, name TEXT, started_at TEXT, stopped_at DATETIME, created_at DATETIME);
		CREATE TABLE users (id TEXT, session_id TEXT, name TEXT, is_host INTEGER, turn_order INTEGER, created_at DATETIME);
		CREATE TABLE activities (seq INTEGER, id TEXT, session_id TEXT, event TEXT, event_at DATETIME);
	`)
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	if err := NewSchemaValidator(db).ValidateTableStructure(); err == nil {
		t.Error("expected started_at TEXT to be rejected")
	}
}

func TestSchemaValidator_ConstraintsNotEnforced(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`
		CREATE TABLE users (id TEXT, session_id TEXT, name TEXT, is_host INTEGER, turn_order INTEGER, created_at DATETIME);
		CREATE TABLE activities (seq INTEGER, id TEXT, session_id TEXT, event TEXT, event_at DATETIME);
	`)
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	if err := NewSchemaValidator(db).ValidateConstraints(); err == nil {
		t.Error("expected missing foreign keys to be reported")
	}
}
