package chat

import "time"

type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusExpired   SessionStatus = "expired"
)

// CompletedBy records who closed a session.
type CompletedBy string

const (
	CompletedByAgent CompletedBy = "agent"
	CompletedAuto    CompletedBy = "auto_24h"
	CompletedSystem  CompletedBy = "system"
)

type MessageKind string

const (
	KindText        MessageKind = "text"
	KindSystem      MessageKind = "system"
	KindAuto        MessageKind = "auto"
	KindOrderUpdate MessageKind = "order_update"
	KindFile        MessageKind = "file"
)

// MaxMessageLen is the hard cap on message body length.
const MaxMessageLen = 2000

// Session is the chat channel bound 1:1 to a print job. The counters are
// derived from the message rows and recomputed on every insert; they are
// never mutated independently.
type Session struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID  string `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	PrintJobID string `gorm:"type:varchar(26);uniqueIndex;not null" json:"print_job_id"`
	CustomerID uint64 `gorm:"index:idx_chat_sessions_customer_status,priority:1;not null" json:"customer_id"`
	AgentID    uint64 `gorm:"index:idx_chat_sessions_agent_status,priority:1;not null" json:"agent_id"`

	Status SessionStatus `gorm:"type:varchar(16);not null;default:active;index:idx_chat_sessions_customer_status,priority:2;index:idx_chat_sessions_agent_status,priority:2" json:"status"`

	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     time.Time    `gorm:"index;not null" json:"expires_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	CompletedBy   *CompletedBy `gorm:"type:varchar(16)" json:"completed_by,omitempty"`
	LastMessageAt time.Time    `json:"last_message_at"`

	TotalMessages    int64 `gorm:"not null;default:0" json:"total_messages"`
	UnreadByCustomer int64 `gorm:"not null;default:0" json:"unread_by_customer"`
	UnreadByAgent    int64 `gorm:"not null;default:0" json:"unread_by_agent"`
}

func (Session) TableName() string { return "chat_sessions" }

// IsParticipant reports whether the given identity is one of the session's
// two fixed participants.
func (s *Session) IsParticipant(userID uint64, aud Audience) bool {
	switch aud {
	case AudienceCustomer:
		return s.CustomerID == userID
	case AudienceAgent:
		return s.AgentID == userID
	}
	return false
}

// Expired reports whether the session is past its expiry instant. This lazy
// check is the authority for send rejection; the periodic sweep only cleans
// up status for reporting.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Message is immutable after creation except for the two read flags, which
// only ever transition false -> true.
type Message struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string      `gorm:"type:varchar(26);not null;index:idx_chat_msg_session,priority:1" json:"session_id"`
	SenderID   *uint64     `gorm:"index" json:"sender_id,omitempty"`
	SenderKind SenderKind  `gorm:"type:varchar(16);not null" json:"sender_kind"`
	Body       string      `gorm:"type:varchar(2000);not null" json:"body"`
	Kind       MessageKind `gorm:"type:varchar(16);not null;default:text" json:"kind"`

	ReadByCustomer bool `gorm:"not null;default:false" json:"read_by_customer"`
	ReadByAgent    bool `gorm:"not null;default:false" json:"read_by_agent"`

	// Reserved for file attachments.
	FileURL  *string `gorm:"type:varchar(512)" json:"file_url,omitempty"`
	FileType *string `gorm:"type:varchar(64)" json:"file_type,omitempty"`
	FileName *string `gorm:"type:varchar(255)" json:"file_name,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_chat_msg_session,priority:2" json:"created_at"`

	// Resolved display name of the sender; not stored.
	SenderName string `gorm:"-" json:"sender_name,omitempty"`
}

func (Message) TableName() string { return "chat_messages" }

// seedReadFlags pre-marks a new message read for its own author's audience;
// system messages start read for both.
func (m *Message) seedReadFlags() {
	switch m.SenderKind {
	case SenderCustomer:
		m.ReadByCustomer = true
	case SenderAgent:
		m.ReadByAgent = true
	case SenderSystem:
		m.ReadByCustomer = true
		m.ReadByAgent = true
	}
}
