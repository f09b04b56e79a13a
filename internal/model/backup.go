package model

import (
	"fmt"
	"time"
)

// BackupVersion is the current backup envelope format version. The field is a
// semantic marker for future format evolution; no migration logic exists yet.
const BackupVersion = "1.0.0"

// BackupData is the versioned envelope written by explicit backup/restore.
// It is a distinct wire shape from RemoteState and the two must be kept apart.
type BackupData struct {
	Transactions []Transaction `json:"transactions"`
	Categories   []Category    `json:"categories"`
	Currencies   []Currency    `json:"currencies"`
	Settings     *AppSettings  `json:"settings"`
	Timestamp    time.Time     `json:"timestamp"`
	Version      string        `json:"version"`
}

// Validate checks that the envelope is structurally sound: all collections
// present, a non-null settings object, a timestamp and a version. Unlike
// RemoteState it does not validate individual records; restore applies them
// one by one and skips the bad ones, while a structurally broken envelope
// marks the whole backup corrupted.
func (b *BackupData) Validate() error {
	if b.Transactions == nil || b.Categories == nil || b.Currencies == nil {
		return fmt.Errorf("backup envelope is missing one or more collections")
	}
	if b.Settings == nil {
		return fmt.Errorf("backup envelope has no settings object")
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("backup envelope has no timestamp")
	}
	if b.Version == "" {
		return fmt.Errorf("backup envelope has no version")
	}
	return nil
}
