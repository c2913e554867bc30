package repository

import (
	"github.com/aligovro/newschools-sub000/internal/models"

	"gorm.io/gorm"
)

// OrganizationRepository is read-only: organizations and projects are managed elsewhere.
type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) GetByID(id uint) (*models.Organization, error) {
	var o models.Organization
	if err := r.db.First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// GetProject loads a project only if it belongs to the organization.
func (r *OrganizationRepository) GetProject(orgID, projectID uint) (*models.Project, error) {
	var p models.Project
	if err := r.db.Where("id = ? AND organization_id = ?", projectID, orgID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *OrganizationRepository) GetStage(projectID, stageID uint) (*models.ProjectStage, error) {
	var s models.ProjectStage
	if err := r.db.Where("id = ? AND project_id = ?", stageID, projectID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
