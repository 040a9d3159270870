// Package nodeindex implements the gateway's per-node local SQL index:
// listmatch, stat, and the "most recent size for key" lookup the
// Destroyer needs, per spec §3 and §4.8-§4.9. One instance runs against
// the node-local replica the gateway is colocated with.
package nodeindex

import "time"

// segment is the node-local record of one archived key, grounded on
// original_source/tools/data_definitions.py's segment_row_template:
// collection_id, key, file_size, file_adler32, file_hash, and a
// tombstone marker standing in for the original's handoff/status
// columns this gateway never needs to interpret itself.
type segment struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	CollectionID int64 `gorm:"not null;index:idx_segments_collection_key"`
	Key          string `gorm:"not null;index:idx_segments_collection_key;size:1024"`
	Timestamp    int64 `gorm:"not null"`
	FileSize     int64 `gorm:"not null"`
	FileMD5      []byte
	FileAdler32  uint32
	Tombstone    bool `gorm:"not null;default:false;index"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (segment) TableName() string { return "segments" }
