package models

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/chat"
)

// Directory adapts the account and print-job tables to the lookup interfaces
// the chat service consumes.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) JobByID(ctx context.Context, id string) (*chat.JobInfo, error) {
	var job PrintJob
	if err := d.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.ErrNotFound
		}
		return nil, err
	}
	return &chat.JobInfo{ID: job.ID, Pages: job.Pages, IsColor: job.IsColor}, nil
}

func (d *Directory) CustomerName(ctx context.Context, id uint64) (string, error) {
	var c Customer
	if err := d.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", chat.ErrNotFound
		}
		return "", err
	}
	return c.FullName, nil
}

func (d *Directory) AgentName(ctx context.Context, id uint64) (string, error) {
	var a PrintAgent
	if err := d.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", chat.ErrNotFound
		}
		return "", err
	}
	if a.BusinessName != "" {
		return a.BusinessName, nil
	}
	return a.FullName, nil
}
