package model

import "time"

// Account represents an application account as stored in the
// `accounts` table. Each field corresponds to a column in the
// database. The password is only ever held as a bcrypt hash and the
// activation link is the one-time identifier mailed to the owner.
//
// Fields:
//
//	ID               – opaque unique identifier (uuid string).
//	Username         – unique, alphanumeric.
//	Email            – unique address.
//	PasswordHash     – bcrypt hash of the password.
//	IsActivated      – whether the activation link has been followed.
//	ActivationLink   – current activation identifier.
//	ActivationDate   – when the account was activated (nil until then).
//	RegistrationDate – timestamp of creation.
type Account struct {
	ID               string     // accounts.id
	Username         string     // accounts.username
	Email            string     // accounts.email
	PasswordHash     string     // accounts.password_hash
	IsActivated      bool       // accounts.is_activated
	ActivationLink   string     // accounts.activation_link
	ActivationDate   *time.Time // accounts.activation_date (nullable)
	RegistrationDate time.Time  // accounts.registration_date
}

// PublicUser is the subset of Account that is safe to return to a
// client. It never carries the password hash or the activation link.
type PublicUser struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	IsActivated      bool       `json:"isActivated"`
	RegistrationDate time.Time  `json:"registrationDate"`
	ActivationDate   *time.Time `json:"activationDate,omitempty"`
}

// Public projects the account onto its client-visible fields.
func (a Account) Public() PublicUser {
	return PublicUser{
		ID:               a.ID,
		Username:         a.Username,
		Email:            a.Email,
		IsActivated:      a.IsActivated,
		RegistrationDate: a.RegistrationDate,
		ActivationDate:   a.ActivationDate,
	}
}

// AccountUpdate lists the mutable profile columns. A nil field is left
// unchanged.
type AccountUpdate struct {
	Username     *string
	Email        *string
	PasswordHash *string
}

// Empty reports whether the update changes nothing.
func (u AccountUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.PasswordHash == nil
}
