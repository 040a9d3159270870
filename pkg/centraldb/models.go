// Package centraldb implements the gateway's central-database
// collaborator: collection and user resolution plus HMAC signing-key
// storage, per spec §6 and the supplemented Collection CRUD surface
// from original_source/web_server/application.py.
package centraldb

import "time"

// User mirrors the original source's notion of a DIYAPI user: an id and
// a name. Its default collection is the Collection row with IsDefault
// set. Password/login flows are out of scope —
// the gateway only ever resolves a user id, never authenticates one
// directly (authentication is HMAC-over-key_id, see pkg/signing).
type User struct {
	ID        int64     `gorm:"primaryKey"`
	Username  string    `gorm:"uniqueIndex;not null;size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName pins the table name so it survives struct renames.
func (User) TableName() string { return "users" }

// Collection is one archive namespace owned by a user. The default
// collection (IsDefault) is the one compute_default_collection_name
// would produce in the original source and cannot be deleted.
type Collection struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"not null;index"`
	Name      string    `gorm:"uniqueIndex;not null;size:255"`
	IsDefault bool      `gorm:"not null;default:false"`
	BytesUsed int64     `gorm:"not null;default:0;column:bytes_used"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Collection) TableName() string { return "collections" }

// Key is one HMAC signing key a user presents as the key_id in the
// Authorization header, named diy_key in the original schema.
type Key struct {
	KeyID     string `gorm:"primaryKey;column:key_id;size:64"`
	UserID    int64  `gorm:"not null;index"`
	Secret    []byte `gorm:"not null;column:key"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Key) TableName() string { return "diy_key" }
