package models

import (
	"time"
)

// Store represents a storefront on the marketplace.
type Store struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;size:255;not null" json:"slug"`
	Timezone  string    `gorm:"size:64" json:"timezone"` // IANA name, empty means the engine default
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Store model.
func (Store) TableName() string {
	return "stores"
}

// Location returns the store's timezone, falling back to def when unset or unknown.
func (s *Store) Location(def *time.Location) *time.Location {
	if s == nil || s.Timezone == "" {
		return def
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return def
	}
	return loc
}

// Customer represents a shopper account.
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Customer model.
func (Customer) TableName() string {
	return "customers"
}

// Review is a customer's rating of a product sold by a store.
type Review struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StoreID    uint      `gorm:"not null;index" json:"store_id"`
	CustomerID uint      `gorm:"not null;index" json:"customer_id"`
	ProductID  uint      `gorm:"not null" json:"product_id"`
	Rating     int       `gorm:"not null" json:"rating"` // 1..5
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Review model.
func (Review) TableName() string {
	return "reviews"
}
