package identity

import "time"

// User is a role record for an identity issued by the external auth provider.
// The UID is the provider's subject; this service never issues credentials.
type User struct {
	UID       string    `db:"uid" json:"uid"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
