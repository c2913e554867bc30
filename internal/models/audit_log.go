package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	OperatorID     *uint             `gorm:"index" json:"operator_id"`
	OrganizationID *uint             `gorm:"index" json:"organization_id"`
	Action         string            `gorm:"size:100;not null;index" json:"action"`
	Resource       string            `gorm:"size:100;index" json:"resource"`
	ResourceID     string            `gorm:"size:100;index" json:"resource_id"`
	IP             string            `gorm:"size:45" json:"ip"`
	UserAgent      string            `gorm:"size:512" json:"user_agent"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
