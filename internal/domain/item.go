package domain

import "time"

// ItemStatus описывает доступность объявления на маркетплейсе.
type ItemStatus string

const (
	// ItemStatusAvailable — товар свободен, по нему можно отправлять заявки.
	ItemStatusAvailable ItemStatus = "available"
	// ItemStatusReserved — товар закреплён за активной сделкой.
	ItemStatusReserved ItemStatus = "reserved"
	// ItemStatusSold — товар продан, сделка завершена.
	ItemStatusSold ItemStatus = "sold"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusAvailable, ItemStatusReserved, ItemStatusSold:
		return true
	default:
		return false
	}
}

// Item описывает объявление продавца.
// Поле Status — единственный источник правды о доступности товара:
// его меняют только акцепт заявки, завершение и отмена сделки,
// плюс ручная правка самим продавцом.
type Item struct {
	ID           string     `json:"id"`
	SellerID     string     `json:"seller_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Price        float64    `json:"price"`
	Category     string     `json:"category"`
	Condition    string     `json:"condition"`
	Location     string     `json:"location,omitempty"`
	IsNegotiable bool       `json:"is_negotiable"`
	Status       ItemStatus `json:"status"`
	Version      int64      `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ValidateInvariants проверяет базовые инварианты объявления и возвращает список замечаний.
func (i *Item) ValidateInvariants() []error {
	var errs []error

	if i.SellerID == "" {
		errs = append(errs, ErrSellerRequired)
	}
	if i.Title == "" {
		errs = append(errs, ErrTitleRequired)
	}
	if i.Price <= 0 {
		errs = append(errs, ErrPriceInvalid)
	}
	if !i.Status.Valid() {
		errs = append(errs, ErrItemStatusInvalid)
	}

	return errs
}
