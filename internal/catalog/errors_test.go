package catalog

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapDBError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
		wantMsg string
	}{
		{"no rows", sql.ErrNoRows, ErrNotFound, "get game '7': not found"},
		{"unique", errors.New("UNIQUE constraint failed: games.library_type, games.library_id"), ErrDuplicate, "entry already exists"},
		{"foreign key", errors.New("FOREIGN KEY constraint failed"), ErrDatabase, "referenced item does not exist"},
		{"missing table", errors.New("no such table: games"), ErrDatabase, "database not initialized"},
		{"other", errors.New("disk I/O error"), ErrDatabase, "disk I/O error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapDBError(tt.err, "get game", "7")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var storeErr *StoreError
			assert.ErrorAs(t, err, &storeErr)
			assert.Equal(t, "get game", storeErr.Op)
		})
	}
}

func TestWrapDBError_Nil(t *testing.T) {
	assert.NoError(t, WrapDBError(nil, "op", ""))
}

func TestStoreError_WithoutKey(t *testing.T) {
	err := &StoreError{Op: "commit", Err: ErrDatabase}
	assert.Equal(t, "commit: database error", err.Error())
}
