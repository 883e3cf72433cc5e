package authflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the local mirror of a provider account. Records are created lazily
// the first time a verified claim for the subject reaches the server; the
// provider stays authoritative for credentials, we only keep what the app
// needs to render and relate data.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Subject        string     `bun:"subject,notnull,unique" json:"subject,omitempty"`
	Email          string     `bun:"email,notnull" json:"email,omitempty"`
	EmailValidated bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	ProfilePicture string     `bun:"profile_picture" json:"profile_picture,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}
