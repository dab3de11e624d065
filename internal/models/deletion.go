package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DeletionState is the soft-delete state of an example or evaluation phrase.
// The zero value is Active. A row deleted in a version keeps that version id
// and is immutable from then on.
type DeletionState struct {
	version int64
	deleted bool
}

// Active returns the state of a live row.
func Active() DeletionState { return DeletionState{} }

// DeletedIn returns the state of a row tombstoned in the given version.
func DeletedIn(versionID int64) DeletionState {
	return DeletionState{version: versionID, deleted: true}
}

func (d DeletionState) IsDeleted() bool { return d.deleted }

// Version returns the version the row was deleted in.
func (d DeletionState) Version() (int64, bool) { return d.version, d.deleted }

// Scan implements sql.Scanner over the nullable deleted_in column.
func (d *DeletionState) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Active()
	case int64:
		*d = DeletedIn(v)
	case int32:
		*d = DeletedIn(int64(v))
	case []byte:
		var id int64
		if _, err := fmt.Sscan(string(v), &id); err != nil {
			return fmt.Errorf("scan deletion state: %w", err)
		}
		*d = DeletedIn(id)
	default:
		return fmt.Errorf("scan deletion state: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (d DeletionState) Value() (driver.Value, error) {
	if !d.deleted {
		return nil, nil
	}
	return d.version, nil
}

func (d DeletionState) MarshalJSON() ([]byte, error) {
	if !d.deleted {
		return []byte("null"), nil
	}
	return json.Marshal(d.version)
}
