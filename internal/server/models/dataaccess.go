package models

import (
	"slices"
	"time"
)

// DataAccess pairs a stored payload with its owner and the usernames allowed
// to read it.
type DataAccess struct {
	ID         int64
	DataID     int64
	Owner      string
	Readers    []string
	FileName   string
	StorageKey string
	CreatedAt  time.Time
}

func (d *DataAccess) IsOwner(username string) bool {
	return d.Owner == username
}

// IsReader is true for the owner and every granted reader.
func (d *DataAccess) IsReader(username string) bool {
	return d.IsOwner(username) || slices.Contains(d.Readers, username)
}
