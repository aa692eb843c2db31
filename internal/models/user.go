package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"golang.org/x/crypto/bcrypt"
)

// User represents a local account that can connect a streaming-service profile.
type User struct {
	id           string
	sequence     int
	email        string
	name         string
	passwordHash string
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewUser creates a user with the given sequence, email and display name.
func NewUser(sequence int, email, name string) *User {
	now := time.Now().UTC()
	return &User{
		sequence:  sequence,
		email:     email,
		name:      name,
		createdAt: now,
		updatedAt: now,
	}
}

func (u *User) ID() string            { return u.id }
func (u *User) Sequence() int         { return u.sequence }
func (u *User) Email() string         { return u.email }
func (u *User) Name() string          { return u.name }
func (u *User) PasswordHash() string  { return u.passwordHash }
func (u *User) CreatedAt() time.Time  { return u.createdAt }
func (u *User) UpdatedAt() time.Time  { return u.updatedAt }
func (u *User) DeletedAt() *time.Time { return u.deletedAt }

func (u *User) SetID(id string)             { u.id = id }
func (u *User) SetEmail(email string)       { u.email = email }
func (u *User) SetName(name string)         { u.name = name }
func (u *User) SetPasswordHash(hash string) { u.passwordHash = hash }
func (u *User) SetCreatedAt(t time.Time)    { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time)    { u.updatedAt = t }
func (u *User) SetDeletedAt(t *time.Time)   { u.deletedAt = t }

// SetPassword hashes the cleartext password with bcrypt and stores the hash.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.passwordHash = string(hash)
	return nil
}

// CheckPassword validates the given cleartext password against the stored hash.
func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password))
}

// Validate checks the user's data.
func (u *User) Validate() error {
	if err := validation.Validate(u.email, validation.Required, is.Email); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	if err := validation.Validate(u.name, validation.Required, validation.Length(1, 200)); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	return nil
}
