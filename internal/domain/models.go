package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserAccount struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is the public view of an account; it never carries the password hash.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u UserAccount) Public() User {
	return User{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type UserCreateRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Username string `json:"username" validate:"required,min=3,max=60"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     Role   `json:"role" validate:"required,oneof=admin manager seller"`
}

type UserUpdateRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Role     *Role   `json:"role,omitempty" validate:"omitempty,oneof=admin manager seller"`
	Active   *bool   `json:"is_active,omitempty"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=6,max=72"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Barcode       string          `json:"barcode,omitempty"`
	Category      string          `json:"category,omitempty"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	StockQuantity decimal.Decimal `json:"stock_quantity"`
	MinStock      decimal.Decimal `json:"min_stock"`
	Active        bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name" validate:"required,max=160"`
	Barcode       string          `json:"barcode" validate:"max=64"`
	Category      string          `json:"category" validate:"max=80"`
	Price         decimal.Decimal `json:"price" validate:"gte=0"`
	CostPrice     decimal.Decimal `json:"cost_price" validate:"gte=0"`
	StockQuantity decimal.Decimal `json:"stock_quantity" validate:"gte=0"`
	MinStock      decimal.Decimal `json:"min_stock" validate:"gte=0"`
}

// ProductUpdateRequest never touches stock; stock only moves through the ledger.
type ProductUpdateRequest struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	Barcode   *string          `json:"barcode,omitempty" validate:"omitempty,max=64"`
	Category  *string          `json:"category,omitempty" validate:"omitempty,max=80"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	MinStock  *decimal.Decimal `json:"min_stock,omitempty"`
	Active    *bool            `json:"is_active,omitempty"`
}

type ProductFilter struct {
	Skip       int
	Limit      int
	ActiveOnly bool
}

type StockMovement struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	Type           MovementType    `json:"movement_type"`
	Timestamp      time.Time       `json:"timestamp"`
	Description    string          `json:"description"`
}

// MovementRecord is a ledger row joined with its product name for display.
type MovementRecord struct {
	StockMovement
	ProductName string `json:"product_name"`
}

type StockAdjustmentRequest struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Description string          `json:"description" validate:"max=255"`
}

type MovementFilter struct {
	Type      MovementType
	From      *time.Time
	To        *time.Time
	ProductID string
}

type CashierSession struct {
	ID             string           `json:"id"`
	TerminalID     string           `json:"terminal_id"`
	OpenedBy       string           `json:"opened_by_user_id"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        *time.Time       `json:"end_time,omitempty"`
	InitialBalance decimal.Decimal  `json:"initial_balance"`
	FinalBalance   *decimal.Decimal `json:"final_balance,omitempty"`
	Status         SessionStatus    `json:"status"`
}

type SessionOpenRequest struct {
	InitialBalance decimal.Decimal `json:"initial_balance" validate:"gte=0"`
}

type SessionCloseRequest struct {
	FinalBalance decimal.Decimal `json:"final_balance" validate:"gte=0"`
}

// SessionStatusView reports a terminal's shift. Only Status and TerminalID are
// set when the terminal is closed.
type SessionStatusView struct {
	Status          SessionStatus    `json:"status"`
	TerminalID      string           `json:"terminal_id"`
	SessionID       string           `json:"session_id,omitempty"`
	OpenedBy        string           `json:"opened_by_user_id,omitempty"`
	StartTime       *time.Time       `json:"start_time,omitempty"`
	InitialBalance  *decimal.Decimal `json:"initial_balance,omitempty"`
	TotalSold       *decimal.Decimal `json:"total_sold,omitempty"`
	ExpectedBalance *decimal.Decimal `json:"expected_balance,omitempty"`
}

type Sale struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	SessionID     string          `json:"session_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        SaleStatus      `json:"status"`
	Items         []SaleItem      `json:"items,omitempty"`
}

type SaleItem struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type SaleLine struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type SaleRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash credit debit pix"`
	Items         []SaleLine    `json:"items" validate:"required,min=1,dive"`
}

type SellerSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type ReceiptItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Receipt is the composed view of a committed sale.
type Receipt struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	TerminalID    string          `json:"terminal_id,omitempty"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        SaleStatus      `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Seller        SellerSummary   `json:"seller"`
	Items         []ReceiptItem   `json:"items"`
}

type TopProduct struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	QuantitySold decimal.Decimal `json:"quantity_sold"`
}

type Dashboard struct {
	Date            string          `json:"date"`
	SalesTodayTotal decimal.Decimal `json:"sales_today_total"`
	SalesTodayCount int             `json:"sales_today_count"`
	BestSeller      *TopProduct     `json:"best_seller"`
	TopProducts     []TopProduct    `json:"top_products"`
	LowStockCount   int             `json:"low_stock_count"`
	LowStock        []Product       `json:"low_stock_items"`
}

// Snapshot is the full persisted state used by backup and restore.
type Snapshot struct {
	Version        string           `json:"version"`
	Timestamp      time.Time        `json:"timestamp"`
	Users          []UserAccount    `json:"users"`
	Products       []Product        `json:"products"`
	Sessions       []CashierSession `json:"sessions"`
	Sales          []Sale           `json:"sales"`
	SaleItems      []SaleItem       `json:"sale_items"`
	StockMovements []StockMovement  `json:"stock_movements"`
}

type SnapshotStats struct {
	Users          int `json:"users"`
	Products       int `json:"products"`
	Sessions       int `json:"cashier_sessions"`
	Sales          int `json:"sales"`
	SaleItems      int `json:"sale_items"`
	StockMovements int `json:"stock_movements"`
}
