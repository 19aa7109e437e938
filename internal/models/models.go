package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name,omitempty"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Name      string          `json:"name"`
	Weight    string          `json:"weight"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	ImageURL  *string         `json:"image_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int             `json:"version"`
}

type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	UserID            uuid.UUID         `json:"user_id"`
	TransactionNumber string            `json:"transaction_number"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	CustomerMoney     decimal.Decimal   `json:"customer_money"`
	ChangeAmount      decimal.Decimal   `json:"change_amount"`
	CreatedAt         time.Time         `json:"created_at"`
	Items             []TransactionItem `json:"items,omitempty"`
}

// TransactionItem is a sale-time snapshot of one product line. ProductID is
// null for ad-hoc lines and manual report adjustments.
type TransactionItem struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	ProductID     uuid.NullUUID   `json:"product_id"`
	ProductName   string          `json:"product_name"`
	ProductWeight string          `json:"product_weight"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	CreatedAt     time.Time       `json:"created_at"`
}

const (
	RoleUser = "user"

	SalePrefix       = "TRX"
	AdjustmentPrefix = "ADJ"
)
