package domain

import "github.com/dmehra2102/storefront/pkg/apperr"

var ErrProductNotFound = apperr.New(apperr.KindProductNotFound, "product not found")

// Product prices are integer cents. InventoryCount is never negative; it only goes down
// inside a committed order transaction.
type Product struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	PriceCents     int64  `json:"price"`
	ImageURL       string `json:"imageUrl"`
	Category       string `json:"category"`
	InventoryCount int    `json:"inventoryCount"`
	IsActive       bool   `json:"isActive"`
}

type NewProduct struct {
	Name           string `json:"name" validate:"required,max=200"`
	Description    string `json:"description" validate:"required,max=2000"`
	PriceCents     int64  `json:"price" validate:"gte=0,lte=100000000"`
	ImageURL       string `json:"imageUrl" validate:"required,max=2048"`
	Category       string `json:"category" validate:"required,max=64"`
	InventoryCount int    `json:"inventoryCount" validate:"gte=0,max=2147483647"`
	IsActive       *bool  `json:"isActive"`
}

func (n NewProduct) Active() bool {
	return n.IsActive == nil || *n.IsActive
}

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name           *string `json:"name" validate:"omitnil,min=1,max=200"`
	Description    *string `json:"description" validate:"omitnil,min=1,max=2000"`
	PriceCents     *int64  `json:"price" validate:"omitnil,gte=0,lte=100000000"`
	ImageURL       *string `json:"imageUrl" validate:"omitnil,min=1,max=2048"`
	Category       *string `json:"category" validate:"omitnil,min=1,max=64"`
	InventoryCount *int    `json:"inventoryCount" validate:"omitnil,gte=0,max=2147483647"`
	IsActive       *bool   `json:"isActive"`
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.PriceCents == nil && p.ImageURL == nil &&
		p.Category == nil && p.InventoryCount == nil && p.IsActive == nil
}

func (p ProductPatch) Apply(prod Product) Product {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.PriceCents != nil {
		prod.PriceCents = *p.PriceCents
	}
	if p.ImageURL != nil {
		prod.ImageURL = *p.ImageURL
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	if p.InventoryCount != nil {
		prod.InventoryCount = *p.InventoryCount
	}
	if p.IsActive != nil {
		prod.IsActive = *p.IsActive
	}
	return prod
}
