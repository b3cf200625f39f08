// Package task is the ledger of scan and scrape runs.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

type Type string

const (
	TypeScan   Type = "scan"
	TypeScrape Type = "scrape"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Task 一次扫描或抓取的执行记录
type Task struct {
	ID             string          `json:"task_id"`
	UserID         int             `json:"-"`
	Type           Type            `json:"task_type"`
	Status         Status          `json:"status"`
	TotalCount     int             `json:"total_count"`
	ProcessedCount int             `json:"processed_count"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CanTransition reports whether from → to is allowed.
// Only pending→started, started→finished and started→failed are.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusStarted
	case StatusStarted:
		return to == StatusFinished || to == StatusFailed
	default:
		return false
	}
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ScanResult is the finished payload of a scan task.
type ScanResult struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Store is the ledger as seen by the pipeline, the API and the reaper.
type Store interface {
	Create(ctx context.Context, userID int, typ Type) (*Task, error)
	Update(ctx context.Context, id string, status Status, result any, errMsg string) (*Task, error)
	Get(ctx context.Context, id string, userID int, typ Type) (*Task, error)
	SetTotal(ctx context.Context, id string, total int) error
	IncrementProcessed(ctx context.Context, id string) error
	LastFinished(ctx context.Context, userID int, typ Type) (*time.Time, error)
	FailStale(ctx context.Context, olderThan time.Time) ([]string, error)
}

func Start(ctx context.Context, s Store, id string) (*Task, error) {
	return s.Update(ctx, id, StatusStarted, nil, "")
}

func Finish(ctx context.Context, s Store, id string, result any) (*Task, error) {
	return s.Update(ctx, id, StatusFinished, result, "")
}

func Fail(ctx context.Context, s Store, id string, cause error) (*Task, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.Update(ctx, id, StatusFailed, nil, msg)
}

func marshalResult(result any) (json.RawMessage, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal task result: %w", err)
		}
		return b, nil
	}
}

func staleError(since time.Time) string {
	return "task abandoned: no progress since " + since.UTC().Format(time.RFC3339)
}
