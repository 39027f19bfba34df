package postgres

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func mustUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func pgxMockNoRows() error {
	return pgx.ErrNoRows
}
