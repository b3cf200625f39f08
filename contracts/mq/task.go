package mq

import "time"

// Routing keys on the events exchange.
const (
	RoutingKeyScanRequested   = "task.scan.requested"
	RoutingKeyScrapeRequested = "task.scrape.requested"
)

// ScanRequestedPayload 邮箱扫描任务请求
type ScanRequestedPayload struct {
	TaskID    string     `json:"task_id"`
	UserID    int        `json:"user_id"`
	StartDate *time.Time `json:"start_date,omitempty"`
	TraceID   string     `json:"trace_id,omitempty"`
}

// ScrapeRequestedPayload 职位页面抓取任务请求
type ScrapeRequestedPayload struct {
	TaskID  string `json:"task_id"`
	UserID  int    `json:"user_id"`
	URL     string `json:"url"`
	TraceID string `json:"trace_id,omitempty"`
}

// RoutingKeyEmailForwarded 转发邮箱收到的邮件
const RoutingKeyEmailForwarded = "email.forwarded"

// EmailForwardedPayload carries one raw RFC 822 message received by the
// forwarding webhook. Raw is base64 on the wire.
type EmailForwardedPayload struct {
	UserID     int       `json:"user_id"`
	MessageID  string    `json:"message_id"`
	ReceivedAt time.Time `json:"received_at"`
	Raw        []byte    `json:"raw"`
	TraceID    string    `json:"trace_id,omitempty"`
}
