package authorization

import (
	"context"
	"errors"
)

const (
	ObjectSalesOrder   = "sales_order"
	ObjectDebt         = "debt"
	ObjectDepositCheck = "deposit_check"
	ObjectPayment      = "payment"
	ObjectInvoice      = "invoice"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionSubmit = "submit"
	ActionReview = "review"
	ActionRender = "render"
)

const (
	RoleSales      = "sales"
	RoleManager    = "manager"
	RoleAccountant = "accountant"
	RoleAdmin      = "admin"
)

type Service interface {
	// Authorize checks the caller carried by ctx against object and action.
	Authorize(ctx context.Context, object string, action string) error
	Allowed(role string, object string, action string) (bool, error)
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
