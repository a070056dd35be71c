package identity

import "time"

const statusActive = "active"

// User represents a registered wallet owner.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone_number"`
	PasswordHash []byte    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Registration is the data needed to onboard an owner.
type Registration struct {
	FirstName string `json:"first_name" validate:"required,min=2,max=100"`
	LastName  string `json:"last_name" validate:"required,min=2,max=100"`
	Email     string `json:"email" validate:"required,email,max=225"`
	Phone     string `json:"phone_number" validate:"required,min=5,max=50"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

// Credentials request structure.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
