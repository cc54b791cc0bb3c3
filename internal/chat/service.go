package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/printlink/print-platform/internal/common"
)

// JobInfo is the slice of a print job the chat subsystem needs: existence,
// and the attributes quoted in the auto-generated first message.
type JobInfo struct {
	ID      string
	Pages   int
	IsColor bool
}

// JobDirectory resolves print jobs. Implementations return ErrNotFound for
// unknown ids.
type JobDirectory interface {
	JobByID(ctx context.Context, id string) (*JobInfo, error)
}

// NameDirectory resolves display names for message senders.
type NameDirectory interface {
	CustomerName(ctx context.Context, id uint64) (string, error)
	AgentName(ctx context.Context, id uint64) (string, error)
}

// Broadcaster delivers an event to live subscribers. Injected at
// construction time; a nil broadcaster drops events.
type Broadcaster interface {
	ToSession(sessionID, event string, payload any)
	ToUser(userID uint64, aud Audience, event string, payload any)
}

// Notifier is told about every persisted message so offline participants can
// receive an external push. Failures must stay inside the implementation.
type Notifier interface {
	MessageSent(ctx context.Context, s *Session, m *Message)
}

type Service struct {
	repo       *Repo
	jobs       JobDirectory
	names      NameDirectory
	broadcast  Broadcaster
	notifier   Notifier
	sessionTTL time.Duration

	locks sessionLocks
}

func NewService(repo *Repo, jobs JobDirectory, names NameDirectory, broadcast Broadcaster, notifier Notifier, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Service{
		repo:       repo,
		jobs:       jobs,
		names:      names,
		broadcast:  broadcast,
		notifier:   notifier,
		sessionTTL: sessionTTL,
		locks:      sessionLocks{m: make(map[string]*sessionLock)},
	}
}

// sessionLocks serializes send/read/complete per session within this process
// so counter recomputation never races another mutation of the same session.
// Entries are reference counted and evicted once the last holder releases,
// keeping the map bounded by in-flight operations rather than every session
// ever touched.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func (l *sessionLocks) lock(sessionID string) *sessionLock {
	l.mu.Lock()
	lk, ok := l.m[sessionID]
	if !ok {
		lk = &sessionLock{}
		l.m[sessionID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return lk
}

func (l *sessionLocks) unlock(sessionID string, lk *sessionLock) {
	lk.Unlock()

	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.m, sessionID)
	}
	l.mu.Unlock()
}

// CreateSession opens the chat for a paid print job. Idempotent: a second
// call for the same job returns the existing session and no new auto message.
func (s *Service) CreateSession(ctx context.Context, jobID string, customerID, agentID uint64) (*Session, *Message, error) {
	job, err := s.jobs.JobByID(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	sid, err := common.NewULID()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	session := &Session{
		SessionID:     sid,
		PrintJobID:    jobID,
		CustomerID:    customerID,
		AgentID:       agentID,
		Status:        StatusActive,
		ExpiresAt:     now.Add(s.sessionTTL),
		LastMessageAt: now,
	}

	session, created, err := s.repo.CreateSessionOrGetExisting(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return session, nil, nil
	}

	color := "black & white"
	if job.IsColor {
		color = "color"
	}
	// The order summary is attributed to the customer so it lands unread on
	// the agent's side like any opening message.
	auto := &Message{
		SessionID:  session.SessionID,
		SenderID:   &customerID,
		SenderKind: SenderCustomer,
		Body:       fmt.Sprintf("Hi! I have placed an order #%s for %d pages %s printing", shortJobID(job.ID), job.Pages, color),
		Kind:       KindAuto,
		CreatedAt:  now,
	}
	auto.seedReadFlags()
	if err := s.repo.InsertMessageAndRecount(ctx, auto); err != nil {
		return nil, nil, err
	}

	session, err = s.repo.GetSessionBySessionID(ctx, session.SessionID)
	if err != nil {
		return nil, nil, err
	}

	s.emitToUser(agentID, AudienceAgent, "new_chat_session", map[string]any{
		"session":         session,
		"initial_message": auto,
	})
	return session, auto, nil
}

func shortJobID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}

// SendMessage validates, persists and fans out one message. The audience
// read flags, counters and last_message_at are settled before it returns.
func (s *Service) SendMessage(ctx context.Context, sessionID string, sender Sender, body string, kind MessageKind) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > MaxMessageLen {
		return nil, ErrInvalidInput
	}
	if kind == "" {
		kind = KindText
	}

	lk := s.locks.lock(sessionID)
	defer s.locks.unlock(sessionID, lk)

	session, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSender(session, sender); err != nil {
		return nil, err
	}
	// Lazy expiry check is authoritative; the sweep only catches up later.
	if session.Status != StatusActive || session.Expired(time.Now()) {
		return nil, ErrInvalidState
	}

	msg := &Message{
		SessionID:  sessionID,
		SenderKind: sender.Kind(),
		Body:       body,
		Kind:       kind,
		CreatedAt:  time.Now(),
	}
	if id, ok := sender.UserID(); ok {
		msg.SenderID = &id
	}
	msg.seedReadFlags()

	if err := s.repo.InsertMessageAndRecount(ctx, msg); err != nil {
		return nil, err
	}

	msg.SenderName = s.senderName(ctx, sender)

	s.emitToSession(sessionID, "new_message", map[string]any{
		"session_id": sessionID,
		"message":    msg,
	})
	if s.notifier != nil {
		s.notifier.MessageSent(ctx, session, msg)
	}
	return msg, nil
}

func authorizeSender(session *Session, sender Sender) error {
	switch sender.Kind() {
	case SenderCustomer:
		if id, _ := sender.UserID(); session.CustomerID == id {
			return nil
		}
	case SenderAgent:
		if id, _ := sender.UserID(); session.AgentID == id {
			return nil
		}
	case SenderSystem:
		// Privileged: automated and moderator content.
		return nil
	}
	return ErrUnauthorized
}

func (s *Service) senderName(ctx context.Context, sender Sender) string {
	if s.names == nil {
		return ""
	}
	id, ok := sender.UserID()
	if !ok {
		return ""
	}
	var name string
	var err error
	switch sender.Kind() {
	case SenderCustomer:
		name, err = s.names.CustomerName(ctx, id)
	case SenderAgent:
		name, err = s.names.AgentName(ctx, id)
	}
	if err != nil {
		return ""
	}
	return name
}

// MarkRead zeroes the audience's unread counter and flips all not-own
// messages to read, atomically with respect to concurrent sends on the same
// session.
func (s *Service) MarkRead(ctx context.Context, sessionID string, aud Audience) error {
	lk := s.locks.lock(sessionID)
	defer s.locks.unlock(sessionID, lk)

	if _, err := s.repo.GetSessionBySessionID(ctx, sessionID); err != nil {
		return err
	}
	return s.repo.MarkAllReadAndRecount(ctx, sessionID, aud)
}

// CompleteSession closes an active session. Repeat calls fail with
// ErrInvalidState; the first completion's attribution is never overwritten.
func (s *Service) CompleteSession(ctx context.Context, sessionID string, by CompletedBy) (*Session, error) {
	lk := s.locks.lock(sessionID)
	defer s.locks.unlock(sessionID, lk)

	session, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rows, err := s.repo.CompleteSession(ctx, sessionID, StatusCompleted, by, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrInvalidState
	}

	body := "This chat has been marked as completed by the print agent."
	if by == CompletedAuto {
		body = "This chat has been automatically closed after 24 hours."
	}
	closing := &Message{
		SessionID:  sessionID,
		SenderKind: SenderSystem,
		Body:       body,
		Kind:       KindSystem,
		CreatedAt:  now,
	}
	closing.seedReadFlags()
	if err := s.repo.InsertMessageAndRecount(ctx, closing); err != nil {
		return nil, err
	}

	session, err = s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.emitToSession(sessionID, "chat_completed", map[string]any{
		"session_id":   sessionID,
		"completed_by": by,
		"message":      closing,
	})
	return session, nil
}

// CompleteByJob closes the session owned by a print job, for completion
// signals arriving through channels outside chat.
func (s *Service) CompleteByJob(ctx context.Context, jobID string, by CompletedBy) (*Session, error) {
	session, err := s.repo.GetSessionByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.CompleteSession(ctx, session.SessionID, by)
}

// SweepExpired transitions every active session past its expiry. Safe to run
// concurrently with live sends: a send either loses the race and is rejected
// by the lazy check, or lands and the next cycle closes the session.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.SweepExpired(ctx, time.Now())
}

// Session returns a session with no participant check (admin/internal use).
func (s *Service) Session(ctx context.Context, sessionID string) (*Session, error) {
	return s.repo.GetSessionBySessionID(ctx, sessionID)
}

// SessionForParticipant returns a session only if the given identity is one
// of its participants.
func (s *Service) SessionForParticipant(ctx context.Context, sessionID string, userID uint64, aud Audience) (*Session, error) {
	session, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(userID, aud) {
		return nil, ErrUnauthorized
	}
	return session, nil
}

// SessionByJob is the participant-scoped lookup of a job's session.
func (s *Service) SessionByJob(ctx context.Context, jobID string, userID uint64, aud Audience) (*Session, error) {
	session, err := s.repo.GetSessionByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(userID, aud) {
		return nil, ErrUnauthorized
	}
	return session, nil
}

type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	Pages    int64 `json:"pages"`
}

// History returns one page of messages in ascending chronological order;
// page 1 starts at the oldest message.
func (s *Service) History(ctx context.Context, sessionID string, page, pageSize int) ([]Message, *Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	if _, err := s.repo.GetSessionBySessionID(ctx, sessionID); err != nil {
		return nil, nil, err
	}

	msgs, total, err := s.repo.ListMessagesPage(ctx, sessionID, page, pageSize)
	if err != nil {
		return nil, nil, err
	}
	for i := range msgs {
		msgs[i].SenderName = s.messageSenderName(ctx, &msgs[i])
	}

	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return msgs, &Pagination{Page: page, PageSize: pageSize, Total: total, Pages: pages}, nil
}

func (s *Service) messageSenderName(ctx context.Context, m *Message) string {
	if m.SenderID == nil || m.SenderKind == SenderSystem {
		return ""
	}
	switch m.SenderKind {
	case SenderCustomer:
		return s.senderName(ctx, CustomerSender(*m.SenderID))
	case SenderAgent:
		return s.senderName(ctx, AgentSender(*m.SenderID))
	}
	return ""
}

// SessionWithLatest annotates a session with its most recent message.
type SessionWithLatest struct {
	Session
	LatestMessage *Message `json:"latest_message,omitempty"`
}

// ActiveSessionsFor lists a user's active, non-expired sessions, most
// recently active first.
func (s *Service) ActiveSessionsFor(ctx context.Context, userID uint64, aud Audience) ([]SessionWithLatest, error) {
	sessions, err := s.repo.ListActiveSessions(ctx, userID, aud, time.Now())
	if err != nil {
		return nil, err
	}
	out := make([]SessionWithLatest, 0, len(sessions))
	for _, sess := range sessions {
		latest, err := s.repo.LatestMessage(ctx, sess.SessionID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			latest.SenderName = s.messageSenderName(ctx, latest)
		}
		out = append(out, SessionWithLatest{Session: sess, LatestMessage: latest})
	}
	return out, nil
}

// SessionUnread is one entry of an unread summary.
type SessionUnread struct {
	SessionID string `json:"session_id"`
	Unread    int64  `json:"unread"`
}

// UnreadSummary totals unread messages across a user's active sessions.
func (s *Service) UnreadSummary(ctx context.Context, userID uint64, aud Audience) (int64, []SessionUnread, error) {
	sessions, err := s.repo.ListActiveSessions(ctx, userID, aud, time.Now())
	if err != nil {
		return 0, nil, err
	}

	var total int64
	perSession := make([]SessionUnread, 0, len(sessions))
	for _, sess := range sessions {
		n, err := s.repo.CountUnread(ctx, sess.SessionID, aud)
		if err != nil {
			return 0, nil, err
		}
		total += n
		if n > 0 {
			perSession = append(perSession, SessionUnread{SessionID: sess.SessionID, Unread: n})
		}
	}
	return total, perSession, nil
}

// Statistics aggregates sessions created in [from, to). Zero bounds default
// to the last 30 days.
func (s *Service) Statistics(ctx context.Context, from, to time.Time) (*Stats, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.Add(-30 * 24 * time.Hour)
	}
	return s.repo.Statistics(ctx, from, to)
}

func (s *Service) emitToSession(sessionID, event string, payload any) {
	if s.broadcast == nil {
		return
	}
	s.broadcast.ToSession(sessionID, event, payload)
}

func (s *Service) emitToUser(userID uint64, aud Audience, event string, payload any) {
	if s.broadcast == nil {
		return
	}
	s.broadcast.ToUser(userID, aud, event, payload)
}
