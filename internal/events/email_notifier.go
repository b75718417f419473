package events

import (
	"context"
	"fmt"

	customerdomain "github.com/smallbiznis/pharmasettle/internal/customer/domain"
	"github.com/smallbiznis/pharmasettle/internal/providers/email"
)

type emailNotifier struct {
	directory customerdomain.Directory
	mailer    email.Provider
}

func NewEmailNotifier(directory customerdomain.Directory, mailer email.Provider) Notifier {
	return &emailNotifier{directory: directory, mailer: mailer}
}

func (n *emailNotifier) Notify(ctx context.Context, event Event) error {
	customer, err := n.directory.Lookup(ctx, event.CustomerID)
	if err != nil {
		return err
	}
	if customer == nil || customer.Email == "" {
		return fmt.Errorf("customer %s has no email address", event.CustomerID)
	}

	subject, templateName := describe(event)
	data := map[string]any{
		"CustomerName": customer.Name,
		"OrderCode":    event.OrderCode,
		"Amount":       event.Amount,
		"Reason":       event.Reason,
	}
	return n.mailer.SendTemplate(ctx, []string{customer.Email}, subject, templateName, data)
}

func describe(event Event) (string, string) {
	switch event.Type {
	case TypeOrderApproved:
		return "Order " + event.OrderCode + " approved", "order_approved"
	case TypeOrderRejected:
		return "Order " + event.OrderCode + " rejected", "order_rejected"
	case TypeDepositCheckApproved:
		return "Payment received for " + event.OrderCode, "deposit_check_approved"
	case TypeDepositCheckRejected:
		return "Payment for " + event.OrderCode + " not confirmed", "deposit_check_rejected"
	default:
		return "Order " + event.OrderCode, "order_approved"
	}
}
