package domain

import "time"

// User — участник маркетплейса. Аутентификация внешняя,
// здесь хранится только профиль и производная статистика продавца.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio,omitempty"`
	// Rating — среднее арифметическое оценок, где пользователь является
	// reviewee, округлённое до двух знаков. 0.0, если отзывов нет.
	Rating     float64   `json:"rating"`
	TotalSales int       `json:"total_sales"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
