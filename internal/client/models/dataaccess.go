// Package models defines the client-side records of the data-access control
// model: DataAccess, Identity and the reader set helpers.
package models

import "slices"

// DataAccess is one shareable data item: an encrypted payload, its owner and
// the identities allowed to read it.
type DataAccess struct {
	// ID is the record id assigned by the server; immutable.
	ID int64 `json:"id"`
	// DataID identifies the encrypted payload. At most one record exists per
	// (payload, owner).
	DataID int64 `json:"data_id"`
	// Owner is the username of the creator; immutable.
	Owner string `json:"owner"`
	// Readers holds unique reader usernames in server order.
	Readers []string `json:"readers"`
}

// IsOwnedBy reports whether username created the record.
func (d DataAccess) IsOwnedBy(username string) bool {
	return username != "" && d.Owner == username
}

// CanRead reports whether username is the owner or one of the readers.
func (d DataAccess) CanRead(username string) bool {
	return d.IsOwnedBy(username) || slices.Contains(d.Readers, username)
}

// Clone returns a copy that does not share the readers slice.
func (d DataAccess) Clone() DataAccess {
	d.Readers = slices.Clone(d.Readers)
	if d.Readers == nil {
		d.Readers = []string{}
	}
	return d
}

// Blob is a payload to upload.
type Blob struct {
	// Name is the file name sent in the multipart part; optional.
	Name string
	Data []byte
}

// Identity describes the authenticated principal.
type Identity struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
