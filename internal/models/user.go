package models

import "time"

// User is an account resolved from the identity provider.
type User struct {
	ID            string    `json:"id" db:"id"`
	ExternalID    string    `json:"externalId" db:"external_id"`
	Email         string    `json:"email" db:"email"`
	Username      string    `json:"username" db:"username"`
	Photo         string    `json:"photo" db:"photo"`
	FirstName     *string   `json:"firstName,omitempty" db:"first_name"`
	LastName      *string   `json:"lastName,omitempty" db:"last_name"`
	PlanID        int       `json:"planId" db:"plan_id"`
	CreditBalance int       `json:"creditBalance" db:"credit_balance"` // may go negative
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Identity carries the profile claims of an authenticated subject.
type Identity struct {
	ExternalID string
	Email      string
	Username   string
	FirstName  string
	LastName   string
	Photo      string
}

// UserUpdate is a partial profile update; nil fields are left untouched.
type UserUpdate struct {
	Username  *string `json:"username,omitempty" validate:"omitempty,min=1,max=64"`
	Photo     *string `json:"photo,omitempty" validate:"omitempty,url"`
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,max=100"`
}

// Empty reports whether the update touches no field.
func (u UserUpdate) Empty() bool {
	return u.Username == nil && u.Photo == nil && u.FirstName == nil && u.LastName == nil
}
