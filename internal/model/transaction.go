package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// CanTransition 状态单向推进，completed→refunded 是唯一例外（外部动作）。
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	switch s {
	case TransactionPending:
		return to == TransactionCompleted || to == TransactionFailed
	case TransactionCompleted:
		return to == TransactionRefunded
	default:
		return false
	}
}

// CourseIDList 一次结算覆盖的课程集合，JSON 列存储。
type CourseIDList []uint

func (l CourseIDList) Value() (driver.Value, error) {
	if l == nil {
		l = CourseIDList{}
	}
	return json.Marshal(l)
}

func (l *CourseIDList) Scan(value interface{}) error {
	if value == nil {
		*l = CourseIDList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for CourseIDList")
	}
	if len(data) == 0 {
		*l = CourseIDList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// Transaction 每次结算尝试产生一条记录，免费课程也记账（金额为 0）。
// swagger:model Transaction
type Transaction struct {
	UUIDBase
	StudentID uint              `gorm:"index;not null" json:"studentId"`
	CourseIDs CourseIDList      `gorm:"type:json" json:"courseIds"`
	Amount    float64           `gorm:"not null" json:"amount"`
	Method    string            `gorm:"size:32" json:"method"`
	Status    TransactionStatus `gorm:"type:enum('pending','completed','failed','refunded');default:'pending'" json:"status"`
	CardLast4 string            `gorm:"size:4" json:"cardLast4"`
	PaidAt    time.Time         `json:"paidAt"`
}

func (Transaction) TableName() string {
	return "transactions"
}
