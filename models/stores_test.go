package models

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/pharmasuite/lifecycle-engine/tests/mockdb"
)

func setupAdminStore(t *testing.T) (*AdminStore, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := mockdb.SetupMockStore(t)

	store := &AdminStore{
		db: db,
	}

	return store, mock, cleanup
}
