package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a live database against the shape the store expects.
type SchemaValidator struct {
	db *sql.DB
}

func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check in order and returns the first failure.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"sessions":          "Session data storage",
		"users":             "Participant storage",
		"activities":        "Session timeline",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies column names and declared types.
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]map[string]string{
		"sessions": {
			"id":         "TEXT",
			"name":       "TEXT",
			"started_at": "DATETIME",
			"stopped_at": "DATETIME",
			"created_at": "DATETIME",
		},
		"users": {
			"id":         "TEXT",
			"session_id": "TEXT",
			"name":       "TEXT",
			"is_host":    "INTEGER",
			"turn_order": "INTEGER",
			"created_at": "DATETIME",
		},
		"activities": {
			"seq":        "INTEGER",
			"id":         "TEXT",
			"session_id": "TEXT",
			"event":      "TEXT",
			"event_at":   "DATETIME",
		},
	}

	for table, columns := range expected {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateIndexes verifies the indexes behind the ordered read paths.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_users_session_order":     "Turn-order listing",
		"idx_activities_session_time": "Timeline retrieval",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints probes the foreign keys by inserting orphan rows,
// which must be rejected.
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO users (id, session_id, name, is_host, turn_order)
		VALUES ('constraint-probe', 'nonexistent', 'probe', 0, 1)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM users WHERE id = 'constraint-probe'")
		return fmt.Errorf("foreign key constraint not enforced: users.session_id")
	}

	_, err = v.db.Exec(`
		INSERT INTO activities (id, session_id, event, event_at)
		VALUES ('constraint-probe', 'nonexistent', 'probe', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM activities WHERE id = 'constraint-probe'")
		return fmt.Errorf("foreign key constraint not enforced: activities.session_id")
	}

	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
