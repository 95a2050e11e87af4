package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VariantKey identifies a purchasable variant of a product. A variant is
// unique per (productId, size, color).
type VariantKey struct {
	Size  string `bson:"size" json:"size"`
	Color string `bson:"color" json:"color"`
}

// Variant carries the per-variant stock counter. Stock is only mutated through
// the inventory ledger's conditional update, never read-modify-written.
type Variant struct {
	Size  string `bson:"size" json:"size"`
	Color string `bson:"color" json:"color"`
	Stock int    `bson:"stock" json:"stock"`
}

// Key returns the identifying part of the variant.
func (v Variant) Key() VariantKey {
	return VariantKey{Size: v.Size, Color: v.Color}
}

type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Price       float64            `bson:"price" json:"price"`
	Discount    float64            `bson:"discount" json:"discount"`
	IsOnSale    bool               `bson:"isOnSale" json:"isOnSale"`
	Images      []string           `bson:"images,omitempty" json:"images,omitempty"`
	Tags        []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	Variants    []Variant          `bson:"variants" json:"variants"`
	IsDeleted   bool               `bson:"isDeleted" json:"isDeleted,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// FindVariant returns the variant matching key, or false when the product has
// no such (size, color) pair.
func (p *Product) FindVariant(key VariantKey) (Variant, bool) {
	for _, v := range p.Variants {
		if v.Size == key.Size && v.Color == key.Color {
			return v, true
		}
	}
	return Variant{}, false
}
