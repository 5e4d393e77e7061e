package models

import "fmt"

// HolderType identifies which kind of account owns billing state.
type HolderType string

const (
	HolderTypeUser HolderType = "user"
	HolderTypeOrg  HolderType = "org"
)

// Holder is the billing-owning entity every subscription and usage record
// is keyed by.
type Holder struct {
	Type HolderType
	ID   string
}

func (h Holder) Key() string {
	return fmt.Sprintf("%s:%s", h.Type, h.ID)
}

// ProductFamily groups plans by the audience they are sold to.
type ProductFamily string

const (
	ProductIndividual ProductFamily = "individual"
	ProductRecruiter  ProductFamily = "recruiter"
	ProductCorporate  ProductFamily = "corporate"
)
