package models

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/chat"
)

var testDBSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:models_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedAccountWithChat(t *testing.T, db *gorm.DB) (customerID, agentID uint64, jobID, sessionID string) {
	t.Helper()

	customer := Customer{Email: "casey@example.com", PasswordHash: "x", FullName: "Casey"}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}
	agent := PrintAgent{Email: "shop@example.com", PasswordHash: "x", FullName: "Pat", BusinessName: "Print Shop"}
	if err := db.Create(&agent).Error; err != nil {
		t.Fatalf("create agent: %v", err)
	}

	jobID = fmt.Sprintf("01JOB%021d", testDBSeq.Load())
	job := PrintJob{
		ID:            jobID,
		CustomerID:    &customer.ID,
		AgentID:       &agent.ID,
		Title:         "flyers",
		Pages:         4,
		TotalCost:     12.50,
		Status:        JobPending,
		PaymentStatus: JobCompleted,
	}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}

	sessionID = fmt.Sprintf("01SES%021d", testDBSeq.Load())
	session := chat.Session{
		SessionID:  sessionID,
		PrintJobID: jobID,
		CustomerID: customer.ID,
		AgentID:    agent.ID,
		Status:     chat.StatusActive,
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	msg := chat.Message{
		SessionID:  sessionID,
		SenderID:   &customer.ID,
		SenderKind: chat.SenderCustomer,
		Body:       "hello",
		Kind:       chat.KindText,
	}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("create message: %v", err)
	}
	token := DeviceToken{UserID: customer.ID, UserKind: "customer", Token: "ExponentPushToken[test]", Platform: "ios", IsActive: true}
	if err := db.Create(&token).Error; err != nil {
		t.Fatalf("create token: %v", err)
	}

	return customer.ID, agent.ID, jobID, sessionID
}

func TestDeleteCustomerAccount_CascadesChatKeepsJob(t *testing.T) {
	db := openTestDB(t)
	customerID, _, jobID, sessionID := seedAccountWithChat(t, db)

	if err := DeleteCustomerAccount(db, customerID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	var c Customer
	if err := db.First(&c, customerID).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("customer lookup err = %v, want record not found", err)
	}

	var sessions, messages, tokens int64
	db.Model(&chat.Session{}).Where("session_id = ?", sessionID).Count(&sessions)
	db.Model(&chat.Message{}).Where("session_id = ?", sessionID).Count(&messages)
	db.Model(&DeviceToken{}).Where("user_id = ? AND user_kind = ?", customerID, "customer").Count(&tokens)
	if sessions != 0 || messages != 0 || tokens != 0 {
		t.Fatalf("leftovers sessions=%d messages=%d tokens=%d", sessions, messages, tokens)
	}

	// the commercial record survives with the participant nulled
	var job PrintJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		t.Fatalf("job lookup: %v", err)
	}
	if job.CustomerID != nil {
		t.Fatalf("job customer_id = %v, want nil", *job.CustomerID)
	}
	if job.AgentID == nil {
		t.Fatal("job agent_id cleared by customer deletion")
	}
}

func TestDeleteAgentAccount_LeavesOtherAgentsAlone(t *testing.T) {
	db := openTestDB(t)
	_, agentID, jobID, sessionID := seedAccountWithChat(t, db)

	other := PrintAgent{Email: "other@example.com", PasswordHash: "x", FullName: "Ona"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("create other agent: %v", err)
	}

	if err := DeleteAgentAccount(db, agentID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	var sessions int64
	db.Model(&chat.Session{}).Where("session_id = ?", sessionID).Count(&sessions)
	if sessions != 0 {
		t.Fatalf("agent's session survived deletion")
	}

	var job PrintJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		t.Fatalf("job lookup: %v", err)
	}
	if job.AgentID != nil {
		t.Fatalf("job agent_id = %v, want nil", *job.AgentID)
	}

	var kept PrintAgent
	if err := db.First(&kept, other.ID).Error; err != nil {
		t.Fatalf("unrelated agent gone: %v", err)
	}
}
