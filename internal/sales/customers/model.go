package customers

import "time"

// Client is the buyer an invoice is billed to.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Country   string    `json:"country,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewClient describes a client created inline with an invoice.
type NewClient struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"max=40"`
	Country  string `json:"country" validate:"max=80"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}
