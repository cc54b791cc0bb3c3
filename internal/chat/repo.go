package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) GetSessionByJobID(ctx context.Context, jobID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("print_job_id = ?", jobID).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// CreateSessionOrGetExisting tries to create a session, but if one already
// references the same print job the existing row wins (payment webhooks can
// fire more than once).
func (r *Repo) CreateSessionOrGetExisting(ctx context.Context, s *Session) (*Session, bool, error) {
	err := r.db.WithContext(ctx).Create(s).Error
	if err == nil {
		return s, true, nil
	}

	existing, getErr := r.GetSessionByJobID(ctx, s.PrintJobID)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, ErrNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// InsertMessageAndRecount persists a message and brings the owning session's
// derived counters and last_message_at in line with the message rows, as one
// unit of work.
func (r *Repo) InsertMessageAndRecount(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return recountSession(tx, m.SessionID, m.CreatedAt)
	})
}

// MarkAllReadAndRecount flips every not-own message to read for the given
// audience and recomputes the session counters from the message rows, never
// from the cached values.
func (r *Repo) MarkAllReadAndRecount(ctx context.Context, sessionID string, aud Audience) error {
	flagCol, ownKind := audienceColumns(aud)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Message{}).
			Where("session_id = ? AND "+flagCol+" = ? AND sender_kind <> ?", sessionID, false, ownKind).
			Update(flagCol, true).Error; err != nil {
			return err
		}
		return recountSession(tx, sessionID, time.Time{})
	})
}

func audienceColumns(aud Audience) (flagCol string, ownKind SenderKind) {
	if aud == AudienceAgent {
		return "read_by_agent", SenderAgent
	}
	return "read_by_customer", SenderCustomer
}

// recountSession recomputes total and unread counters inside tx. A zero
// lastMessageAt leaves last_message_at untouched.
func recountSession(tx *gorm.DB, sessionID string, lastMessageAt time.Time) error {
	var total int64
	if err := tx.Model(&Message{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error; err != nil {
		return err
	}

	var unreadCustomer, unreadAgent int64
	if err := tx.Model(&Message{}).
		Where("session_id = ? AND read_by_customer = ? AND sender_kind <> ?", sessionID, false, SenderCustomer).
		Count(&unreadCustomer).Error; err != nil {
		return err
	}
	if err := tx.Model(&Message{}).
		Where("session_id = ? AND read_by_agent = ? AND sender_kind <> ?", sessionID, false, SenderAgent).
		Count(&unreadAgent).Error; err != nil {
		return err
	}

	updates := map[string]any{
		"total_messages":     total,
		"unread_by_customer": unreadCustomer,
		"unread_by_agent":    unreadAgent,
	}
	if !lastMessageAt.IsZero() {
		updates["last_message_at"] = lastMessageAt
	}
	return tx.Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error
}

func (r *Repo) CountUnread(ctx context.Context, sessionID string, aud Audience) (int64, error) {
	flagCol, ownKind := audienceColumns(aud)
	var n int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ? AND "+flagCol+" = ? AND sender_kind <> ?", sessionID, false, ownKind).
		Count(&n).Error
	return n, err
}

// CompleteSession transitions an active session to the given terminal status.
// Returns the number of rows updated: zero means the session was already
// completed or expired.
func (r *Repo) CompleteSession(ctx context.Context, sessionID string, status SessionStatus, by CompletedBy, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ? AND status = ?", sessionID, StatusActive).
		Updates(map[string]any{
			"status":       status,
			"completed_at": at,
			"completed_by": by,
		})
	return res.RowsAffected, res.Error
}

// SweepExpired bulk-transitions active sessions whose expiry is strictly in
// the past. Already-terminal sessions are never revisited.
func (r *Repo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("status = ? AND expires_at < ?", StatusActive, now).
		Updates(map[string]any{
			"status":       StatusExpired,
			"completed_at": now,
			"completed_by": CompletedAuto,
		})
	return res.RowsAffected, res.Error
}

// ListActiveSessions returns active, non-expired sessions where the user is a
// participant, most recently active first.
func (r *Repo) ListActiveSessions(ctx context.Context, userID uint64, aud Audience, now time.Time) ([]Session, error) {
	col := "customer_id"
	if aud == AudienceAgent {
		col = "agent_id"
	}
	var sessions []Session
	err := r.db.WithContext(ctx).
		Where(col+" = ? AND status = ? AND expires_at > ?", userID, StatusActive, now).
		Order("last_message_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *Repo) LatestMessage(ctx context.Context, sessionID string) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesPage returns one page of a session's messages in ascending
// chronological order, plus the total count fixed in the same read.
func (r *Repo) ListMessagesPage(ctx context.Context, sessionID string, page, pageSize int) ([]Message, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// Stats aggregates sessions created inside a time range.
type Stats struct {
	TotalSessions     int64   `json:"total_sessions"`
	ActiveSessions    int64   `json:"active_sessions"`
	CompletedSessions int64   `json:"completed_sessions"`
	ExpiredSessions   int64   `json:"expired_sessions"`
	AvgMessages       float64 `json:"avg_messages"`
}

func (r *Repo) Statistics(ctx context.Context, from, to time.Time) (*Stats, error) {
	var st Stats
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS total_sessions,
		       COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0) AS active_sessions,
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed_sessions,
		       COALESCE(SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END), 0) AS expired_sessions,
		       COALESCE(AVG(total_messages), 0) AS avg_messages
		FROM chat_sessions
		WHERE created_at >= ? AND created_at < ?
	`, from, to).Scan(&st).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}
