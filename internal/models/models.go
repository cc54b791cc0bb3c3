package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/chat"
)

type Customer struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	FullName     string `gorm:"type:varchar(255);not null" json:"full_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

type PrintAgent struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	FullName     string `gorm:"type:varchar(255);not null" json:"full_name"`
	BusinessName string `gorm:"type:varchar(255)" json:"business_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PrintAgent) TableName() string { return "print_agents" }

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
)

// PrintJob is the commercial transaction a chat session is bound to.
// Participant references are nullable: business records outlive account
// deletion with the deleted side nulled out.
type PrintJob struct {
	ID         string  `gorm:"primaryKey;size:26" json:"id"` // ULID
	CustomerID *uint64 `gorm:"index" json:"customer_id,omitempty"`
	AgentID    *uint64 `gorm:"index" json:"agent_id,omitempty"`

	Title       string  `gorm:"type:varchar(255);not null" json:"title"`
	Pages       int     `gorm:"not null" json:"pages"`
	IsColor     bool    `gorm:"not null" json:"is_color"`
	NoOfCopies  int     `gorm:"not null;default:1" json:"no_of_copies"`
	Description string  `gorm:"type:text" json:"description,omitempty"`
	TotalCost   float64 `gorm:"not null" json:"total_cost"`

	Status        JobStatus `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	PaymentStatus JobStatus `gorm:"type:varchar(16);not null;default:pending" json:"payment_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PrintJob) TableName() string { return "print_jobs" }

// DeviceToken is one push-notification endpoint registered by a user.
type DeviceToken struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   uint64 `gorm:"index:idx_device_tokens_user,priority:1;not null" json:"user_id"`
	UserKind string `gorm:"type:varchar(16);index:idx_device_tokens_user,priority:2;not null" json:"user_kind"`
	Token    string `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	Platform string `gorm:"type:varchar(32);not null;default:mobile" json:"platform"`
	IsActive bool   `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DeviceToken) TableName() string { return "device_tokens" }

// AutoMigrate creates every table the platform owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Customer{},
		&PrintAgent{},
		&PrintJob{},
		&DeviceToken{},
		&chat.Session{},
		&chat.Message{},
	)
}

// DeleteCustomerAccount removes a customer and everything scoped to the
// account: device tokens, chat sessions and their messages. Print jobs are
// retained with the customer reference nulled.
func DeleteCustomerAccount(db *gorm.DB, customerID uint64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		return deleteAccount(tx, customerID, "customer", "customer_id", &Customer{})
	})
}

// DeleteAgentAccount is the agent-side counterpart of DeleteCustomerAccount.
func DeleteAgentAccount(db *gorm.DB, agentID uint64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		return deleteAccount(tx, agentID, "agent", "agent_id", &PrintAgent{})
	})
}

func deleteAccount(tx *gorm.DB, userID uint64, kind, participantCol string, account any) error {
	if err := tx.Where("user_id = ? AND user_kind = ?", userID, kind).
		Delete(&DeviceToken{}).Error; err != nil {
		return err
	}

	var sessionIDs []string
	if err := tx.Model(&chat.Session{}).
		Where(participantCol+" = ?", userID).
		Pluck("session_id", &sessionIDs).Error; err != nil {
		return err
	}
	if len(sessionIDs) > 0 {
		if err := tx.Where("session_id IN ?", sessionIDs).
			Delete(&chat.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id IN ?", sessionIDs).
			Delete(&chat.Session{}).Error; err != nil {
			return err
		}
	}

	if err := tx.Model(&PrintJob{}).
		Where(participantCol+" = ?", userID).
		Update(participantCol, nil).Error; err != nil {
		return err
	}

	return tx.Delete(account, userID).Error
}
