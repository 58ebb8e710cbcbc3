package domain

import "time"

// Plan identifies the subscription tier of an account.
type Plan string

const (
	PlanBasic    Plan = "BASIC"
	PlanFree     Plan = "FREE"
	PlanPremium  Plan = "PREMIUM"
	PlanPro      Plan = "PRO"
	PlanAdvanced Plan = "ADVANCED"
)

// Valid reports whether the plan is a known tier.
func (p Plan) Valid() bool {
	switch p {
	case PlanBasic, PlanFree, PlanPremium, PlanPro, PlanAdvanced:
		return true
	}
	return false
}

// Role identifies the privilege level of an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether the role is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account represents one identity record in the directory. Username and email
// are globally unique; username is immutable after creation.
type Account struct {
	ID                int64
	FirstName         string
	LastName          string
	Username          string
	Email             string
	PasswordHash      string
	ProfilePictureURL string
	CoinsAmount       int64
	Plan              Plan
	Role              Role
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PublicAccount is the outward view of an account. It never carries the
// password hash.
type PublicAccount struct {
	ID                int64  `json:"id"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	ProfilePictureURL string `json:"profilePicture"`
	CoinsAmount       int64  `json:"coinsAmount"`
	Plan              Plan   `json:"plan"`
	Role              Role   `json:"role"`
}

// Public strips the password hash from an account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:                a.ID,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		Username:          a.Username,
		Email:             a.Email,
		ProfilePictureURL: a.ProfilePictureURL,
		CoinsAmount:       a.CoinsAmount,
		Plan:              a.Plan,
		Role:              a.Role,
	}
}

// AccountSummary is the minimal listing view (directory browsing).
type AccountSummary struct {
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profilePicture"`
}
