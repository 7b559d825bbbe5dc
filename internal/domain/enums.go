package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleSeller  Role = "seller"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleSeller:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleCanceled  SaleStatus = "canceled"
)

type MovementType string

const (
	MovementEntry      MovementType = "entry"
	MovementSale       MovementType = "sale"
	MovementAdjustment MovementType = "adjustment"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementEntry, MovementSale, MovementAdjustment:
		return true
	}
	return false
}

// ParseMovementType accepts the canonical names case-insensitively, plus
// "loss" which older clients send for adjustments.
func ParseMovementType(raw string) (MovementType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "entry":
		return MovementEntry, nil
	case "sale":
		return MovementSale, nil
	case "adjustment", "loss":
		return MovementAdjustment, nil
	}
	return "", fmt.Errorf("unknown movement type %q", raw)
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCredit PaymentMethod = "credit"
	PaymentDebit  PaymentMethod = "debit"
	PaymentPix    PaymentMethod = "pix"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCredit, PaymentDebit, PaymentPix:
		return true
	}
	return false
}
