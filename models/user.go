package models

// User repräsentiert einen registrierten Nutzer. Das Passwort wird nur als
// bcrypt-Hash gespeichert und nie in Responses serialisiert.
type User struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Password string `json:"-"`
	Interest string `json:"interest,omitempty"`
}
