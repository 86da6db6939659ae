package models

import (
	"time"

	"gorm.io/gorm"
)

// MessageType is the stored variant of a message
type MessageType string

const (
	MessageTypeText                   MessageType = "text"
	MessageTypeTransferMarker         MessageType = "transfer_marker"
	MessageTypeMergeMarker            MessageType = "merge_marker"
	MessageTypeConversationEndsMarker MessageType = "conversation_ends_marker"
	MessageTypeCourtReminder          MessageType = "court_reminder"
)

// MessageKind is the variant as the timeline presents it. A scheduled
// message is a text or court reminder that has not been sent and whose
// send time has not arrived.
type MessageKind string

const (
	MessageKindInbound          MessageKind = "inbound"
	MessageKindOutbound         MessageKind = "outbound"
	MessageKindScheduled        MessageKind = "scheduled"
	MessageKindTransferMarker   MessageKind = "transfer_marker"
	MessageKindMergeMarker      MessageKind = "merge_marker"
	MessageKindConversationEnds MessageKind = "conversation_ends_marker"
	MessageKindCourtReminder    MessageKind = "court_reminder"
)

// Provider delivery statuses we act on
const (
	StatusAccepted    = "accepted"
	StatusQueued      = "queued"
	StatusSending     = "sending"
	StatusSent        = "sent"
	StatusDelivered   = "delivered"
	StatusFailed      = "failed"
	StatusUndelivered = "undelivered"
	StatusReceived    = "received"
	// StatusBlacklisted is recorded locally when the recipient opted out.
	StatusBlacklisted = "blacklisted"
)

// PendingStatuses are outbound statuses that will still change
var PendingStatuses = []string{StatusAccepted, StatusQueued, StatusSending, StatusSent}

// IsFailureStatus reports whether status is a terminal failure
func IsFailureStatus(status string) bool {
	return status == StatusFailed || status == StatusUndelivered
}

// Message is one entry in a relationship's timeline
type Message struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Type         MessageType `gorm:"size:30;index;not null" json:"type"`
	Body         string      `gorm:"type:text" json:"body"`
	NumberFrom   string      `gorm:"size:20" json:"number_from"`
	NumberTo     string      `gorm:"size:20" json:"number_to"`
	Inbound      bool        `json:"inbound"`
	Read         bool        `json:"read"`
	Sent         bool        `gorm:"index" json:"sent"`
	SendAt       time.Time   `gorm:"index" json:"send_at"`
	TwilioSID    string      `gorm:"column:twilio_sid;size:64;index" json:"twilio_sid"`
	TwilioStatus string      `gorm:"size:20" json:"twilio_status"`

	ReportingRelationshipID uint `gorm:"index;not null" json:"reporting_relationship_id"`
	// OriginalReportingRelationshipID never changes after create, even when
	// a transfer or merge moves the message.
	OriginalReportingRelationshipID uint      `gorm:"index;not null" json:"original_reporting_relationship_id"`
	LikeMessageID                   *uint     `json:"like_message_id"`
	CourtDateCSVID                  *uint     `gorm:"column:court_date_csv_id;index" json:"court_date_csv_id"`
	CreatedAt                       time.Time `json:"created_at"`
	UpdatedAt                       time.Time `json:"updated_at"`

	ReportingRelationship *ReportingRelationship `gorm:"foreignKey:ReportingRelationshipID" json:"-"`
	Attachments           []Attachment           `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

// BeforeCreate pins the provenance pointer
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.OriginalReportingRelationshipID == 0 {
		m.OriginalReportingRelationshipID = m.ReportingRelationshipID
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return nil
}

// IsMarker reports whether the message is a system timeline entry
func (m *Message) IsMarker() bool {
	switch m.Type {
	case MessageTypeTransferMarker, MessageTypeMergeMarker, MessageTypeConversationEndsMarker:
		return true
	}
	return false
}

// Kind classifies the message at a point in time
func (m *Message) Kind(now time.Time) MessageKind {
	switch m.Type {
	case MessageTypeTransferMarker:
		return MessageKindTransferMarker
	case MessageTypeMergeMarker:
		return MessageKindMergeMarker
	case MessageTypeConversationEndsMarker:
		return MessageKindConversationEnds
	}
	if !m.Sent && m.SendAt.After(now) {
		return MessageKindScheduled
	}
	if m.Type == MessageTypeCourtReminder {
		return MessageKindCourtReminder
	}
	if m.Inbound {
		return MessageKindInbound
	}
	return MessageKindOutbound
}

// MarkerTypes lists the system marker variants
var MarkerTypes = []MessageType{MessageTypeTransferMarker, MessageTypeMergeMarker, MessageTypeConversationEndsMarker}
