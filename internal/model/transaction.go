package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTransaction повторяет нестрогую форму записи транзакции, которую
// возвращает бэкенд: набор полей зависит от того, успел ли вебхук
// платёжного провайдера материализовать запись.
type RawTransaction struct {
	ID             string  `json:"_id,omitempty"`
	Status         string  `json:"status,omitempty"`
	PaymentStatus  string  `json:"paymentStatus,omitempty"`
	UniqueCode     string  `json:"uniqueCode,omitempty"`
	PackageType    string  `json:"packageType,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	CreatedAt      string  `json:"createdAt,omitempty"`
	ContractPeriod string  `json:"contractPeriod,omitempty"`
}

// Transaction — размеченное объединение состояний записи транзакции.
// Конструкция гарантирует, что "оплачено" нельзя получить иначе как
// через ClassifyTransaction, которая проверяет оба условия финализации.
type Transaction interface {
	transaction()
}

// TransactionNotFound означает, что запись ещё не существует (404 бэкенда).
type TransactionNotFound struct{}

// TransactionProcessing означает промежуточное состояние: запись не
// финализирована, опрос должен продолжаться.
type TransactionProcessing struct {
	UniqueCode    string
	PaymentStatus string
}

// TransactionPaid означает финализированную оплату: запись материализована
// (_id присвоен) и статус равен paid. Оба условия обязательны.
type TransactionPaid struct {
	ID             string
	UniqueCode     string
	PackageType    PackageType
	AmountCents    int64
	CreatedAt      time.Time
	ContractPeriod string
}

// TransactionFailed означает явный отказ бэкенда.
type TransactionFailed struct {
	UniqueCode string
}

func (TransactionNotFound) transaction()   {}
func (TransactionProcessing) transaction() {}
func (TransactionPaid) transaction()       {}
func (TransactionFailed) transaction()     {}

const (
	txStatusPaid   = "paid"
	txStatusFailed = "failed"
)

// ClassifyTransaction превращает нестрогий ответ бэкенда в размеченное
// состояние. Ключевой инвариант: paymentStatus == "paid" без _id — это
// всё ещё Processing, вебхук мог не дойти.
func ClassifyTransaction(raw *RawTransaction) Transaction {
	if raw == nil {
		return TransactionNotFound{}
	}

	if raw.Status == txStatusFailed {
		return TransactionFailed{UniqueCode: raw.UniqueCode}
	}

	if raw.ID != "" && raw.Status == txStatusPaid {
		createdAt, _ := time.Parse(time.RFC3339, raw.CreatedAt)
		return TransactionPaid{
			ID:             raw.ID,
			UniqueCode:     raw.UniqueCode,
			PackageType:    PackageType(raw.PackageType),
			AmountCents:    amountToCents(raw.Amount),
			CreatedAt:      createdAt,
			ContractPeriod: raw.ContractPeriod,
		}
	}

	return TransactionProcessing{
		UniqueCode:    raw.UniqueCode,
		PaymentStatus: raw.PaymentStatus,
	}
}

// amountToCents переводит сумму из денежных единиц в центы без накопления
// плавающей ошибки.
func amountToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
