package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorID    string            `json:"actor_id" gorm:"type:text;not null"`
	ActorRole  string            `json:"actor_role" gorm:"type:text;not null"`
	Action     string            `json:"action" gorm:"type:text;not null;index"`
	TargetType string            `json:"target_type" gorm:"type:text;not null;index:idx_audit_target"`
	TargetID   string            `json:"target_id" gorm:"type:text;not null;index:idx_audit_target"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	RequestID  string            `json:"request_id" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

const (
	ActionSalesOrderApprove   = "sales_order.approve"
	ActionSalesOrderReject    = "sales_order.reject"
	ActionDepositCheckApprove = "deposit_check.approve"
	ActionDepositCheckReject  = "deposit_check.reject"
	ActionPaymentConfirm      = "payment.confirm"
	ActionPaymentFail         = "payment.fail"
	ActionPaymentExpire       = "payment.expire"
	ActionPaymentOverpaid     = "payment.overpaid"
	ActionInvoiceGenerate     = "invoice.generate"
)
