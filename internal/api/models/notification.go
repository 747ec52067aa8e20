package models

import (
	"github.com/titorm/nexus-saude-sub001/internal/notify"
)

// NotificationHistory is a page of completed notification jobs, newest
// first.
type NotificationHistory struct {
	Items []*notify.Job `json:"items"`
}
