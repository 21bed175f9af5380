package metadata

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Node{},
		&StoredFile{},
		&Chunk{},
		&PendingReplication{},
	}
}
