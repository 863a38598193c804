package model

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the primary key was left empty.
// IDs are generated in Go so the schema works on both Postgres and SQLite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
