package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an authenticated account. Uploaded data and jobs belong to a user;
// system-sourced data may have no owner.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Email     string    `db:"email"      json:"email"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
