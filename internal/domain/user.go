package domain

// User is the projection of a task owner used when composing and delivering
// reminder content. The owning identity service is the source of truth; this
// core only reads what delivery needs.
type User struct {
	ID       int64  `json:"user_id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Timezone string `json:"timezone,omitempty"`
}

// Validate checks the user projection for the fields delivery depends on.
func (u *User) Validate() error {
	if u.ID <= 0 {
		return ErrInvalidID
	}
	if u.Email == "" {
		return ErrValidation
	}
	return nil
}
