package domain

import "time"

// Authenticatable is what the session layer needs to know about an identity
type Authenticatable interface {
	GetID() string       // Stable opaque identifier
	GetUsername() string // Login name
}

// User Model
type User struct {
	ID           string    `gorm:"primaryKey;size:36" bson:"_id"`                          // UUID, opaque and stable
	Email        string    `gorm:"size:255;uniqueIndex;not null" bson:"email"`             // Unique email
	Username     string    `gorm:"size:32;uniqueIndex;not null" bson:"username"`           // Unique username
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-" bson:"password"` // bcrypt hash, never the plaintext
	CreatedAt    time.Time `bson:"created_at"`                                             // Registration time
}

// GetID returns the user's ID
func (u *User) GetID() string { return u.ID }

// GetUsername returns the user's username
func (u *User) GetUsername() string { return u.Username }
