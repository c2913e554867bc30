package models

import "time"

type Project struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	OrganizationID  uint      `gorm:"not null;index" json:"organization_id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	TargetAmount    int64     `gorm:"not null;default:0" json:"target_amount"`
	CollectedAmount int64     `gorm:"not null;default:0" json:"collected_amount"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

type ProjectStage struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ProjectID       uint      `gorm:"not null;index" json:"project_id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	TargetAmount    int64     `gorm:"not null;default:0" json:"target_amount"`
	CollectedAmount int64     `gorm:"not null;default:0" json:"collected_amount"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ProjectStage) TableName() string {
	return "project_stages"
}
