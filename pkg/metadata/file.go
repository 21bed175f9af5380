package metadata

import "time"

// StoredFile is the metadata record for one uploaded file.
//
// A StoredFile row is created together with the first committed chunk;
// size and digest are finalized in the step that makes the upload
// successful. After that the record is immutable except LastAccessed.
type StoredFile struct {
	ID               string `gorm:"primaryKey;size:36" json:"id"`
	DisplayName      string `gorm:"not null;size:255" json:"display_name"`
	OriginalFilename string `gorm:"not null;size:255" json:"original_filename"`
	TypeTag          string `gorm:"size:100" json:"type_tag"`
	SizeBytes        int64  `gorm:"not null" json:"size_bytes"`
	ContentType      string `gorm:"size:100" json:"content_type"`

	// WholeFileDigest is the SHA-256 over the original bytes, hex encoded.
	WholeFileDigest string `gorm:"size:64" json:"whole_file_digest"`

	Owner        string     `gorm:"not null;size:255;index" json:"owner"`
	UploadedAt   time.Time  `gorm:"autoCreateTime" json:"uploaded_at"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// TableName returns the table name for StoredFile.
func (StoredFile) TableName() string {
	return "stored_files"
}
