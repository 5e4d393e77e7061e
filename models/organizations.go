package models

import (
	"time"

	"github.com/hireloop/entitlements-engine/utils"
)

type OrganizationKind string

const (
	OrganizationKindRecruiter OrganizationKind = "recruiter"
	OrganizationKindCorporate OrganizationKind = "corporate"
)

type Organization struct {
	ID        string           `gorm:"primaryKey;->"`
	Name      string           `gorm:"->"`
	Kind      OrganizationKind `gorm:"->"`
	CreatedAt time.Time        `gorm:"->"`
	UpdatedAt time.Time        `gorm:"->"`
}

func (store *ApiStore) FetchOrganization(organizationID string) utils.Result[*Organization] {
	var org Organization
	result := store.db.Connection.First(&org, "id = ?", organizationID)
	if result.Error != nil {
		return failedRecordResult[*Organization](result.Error)
	}

	return utils.SuccessResult(&org)
}

// ProductFamily maps an organization to the product family its plans are
// sold under. Corporate orgs get the corporate catalog, everything else is
// treated as a recruiting agency.
func (org *Organization) ProductFamily() ProductFamily {
	if org.Kind == OrganizationKindCorporate {
		return ProductCorporate
	}
	return ProductRecruiter
}
