package models

import "time"

// Product is a catalog entry. Prices are integer cents.
type Product struct {
	ID          string    `json:"id"`
	ProductName string    `json:"product_name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateProductRequest is the POST /product body.
type CreateProductRequest struct {
	ProductName string `json:"product_name" validate:"required,max=256"`
	Description string `json:"description" validate:"max=4096"`
	PriceCents  *int64 `json:"price_cents" validate:"required,gte=0"`
}

// ProductPatch is the PUT /product/:id body. At least one field must be set.
type ProductPatch struct {
	ProductName *string `json:"product_name" validate:"omitempty,min=1,max=256"`
	Description *string `json:"description" validate:"omitempty,max=4096"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,gte=0"`
}

func (p ProductPatch) Empty() bool {
	return p.ProductName == nil && p.Description == nil && p.PriceCents == nil
}

// Apply copies the set fields onto product.
func (p ProductPatch) Apply(product *Product) {
	if p.ProductName != nil {
		product.ProductName = *p.ProductName
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.PriceCents != nil {
		product.PriceCents = *p.PriceCents
	}
}

// BatchResponse is returned when GET /product is called with several ids.
type BatchResponse struct {
	Products []Product `json:"products"`
}
