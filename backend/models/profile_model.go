package models

import "time"

// Profile is the single per-user row holding credits and free-trial state.
// Nullable text columns are normalised to "" on read.
type Profile struct {
	UserID                string     `json:"user_id"`
	FullName              string     `json:"full_name,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	Credits               int        `json:"credits"`
	FreeWindowStart       *time.Time `json:"free_window_start"`
	FreeExpiresAt         *time.Time `json:"free_expires_at"`
	FreeUsed              int        `json:"free_used"`
	StripeCustomerID      string     `json:"-"`
	StripePaymentMethodID string     `json:"-"`
	AutoRecharge          bool       `json:"auto_recharge"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

type ActivateFreeForm struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
}

type AutoRechargeForm struct {
	Enabled *bool `json:"enabled"`
}
