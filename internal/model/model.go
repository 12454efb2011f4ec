// Package model содержит доменные сущности шлюза оформления покупок.
package model

import "time"

// Role описывает роль пользователя во внешней системе.
type Role string

const (
	RoleB2CUser   Role = "b2c_user"
	RoleB2BUser   Role = "b2b_user"
	RoleB2EUser   Role = "b2e_user"
	RoleB2BMember Role = "b2b_member"
	RoleB2EMember Role = "b2e_member"
	RoleAdmin     Role = "admin"
)

// User представляет профиль пользователя, полученный от бэкенда при входе.
type User struct {
	Role           Role
	OrganizationID string
	SchoolID       string
}

// Session описывает серверную сессию пользователя.
// Токен бэкенда хранится только здесь и подставляется во все исходящие запросы.
type Session struct {
	ID        string
	Token     string
	User      User
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired сообщает, истекла ли сессия к моменту now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// BillingType описывает схему оплаты пакета.
type BillingType string

const (
	BillingOneTime      BillingType = "one_time"
	BillingSubscription BillingType = "subscription"
	BillingPerSeat      BillingType = "per_seat"
)

// PackageType описывает способ доставки купленного пакета.
type PackageType string

const (
	PackageTypeDigital  PackageType = "digital"
	PackageTypePhysical PackageType = "physical"
)

// IsPhysical сообщает, требует ли пакет физической доставки.
// Для таких пакетов кода погашения не существует, и он не должен показываться.
func (p PackageType) IsPhysical() bool {
	return p == PackageTypePhysical
}

// Product описывает позицию каталога.
type Product struct {
	ID         string
	Name       string
	Type       string
	Category   string
	PriceCents int64
	Billing    BillingType
}
