package domain

// User is an operator of the CRM. Stored as a document of kind "user".
type User struct {
	Record
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"required"`
	Role         string `json:"role" validate:"required"`
	PasswordHash string `json:"password_hash,omitempty"`
	Disabled     bool   `json:"disabled"`
}

func (u *User) CurrentStatus() Status { return activeStatus(!u.Disabled) }
func (u *User) SetStatus(s Status)    { u.Disabled = s != StatusActive }

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at"`
}
