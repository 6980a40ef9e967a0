////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package antiblock

import (
	"fmt"
	"strconv"
)

const (
	blockedNotificationBase   = 10000000
	unblockedNotificationBase = 20000000
	notificationIDRange       = 10000000

	copyIDLabel    = "Copy ID"
	copyIDActionID = "COPY"
)

// Notification channels.
const (
	BlocksChannelID            = "blocks"
	BlocksChannelName          = "Block Notifications"
	BlocksChannelDescription   = "Notifications when users block you"
	UnblocksChannelID          = "unblocks"
	UnblocksChannelName        = "Unblock Notifications"
	UnblocksChannelDescription = "Notifications when users unblock you"
)

// Source says where a removal was observed.
type Source uint8

const (
	// InboxDiff removals are conversations missing from a server inbox page.
	InboxDiff Source = iota
	// PushNotification removals come from a conversation removal push event.
	PushNotification
)

// String returns the name used in logs and block events.
func (s Source) String() string {
	switch s {
	case InboxDiff:
		return "inbox"
	case PushNotification:
		return "push"
	default:
		return fmt.Sprintf("INVALID SOURCE: %d", s)
	}
}

// RemovalEvent is a conversation that disappeared without the viewer asking.
type RemovalEvent struct {
	OtherParticipantID int64
	ConversationID     string
	Source             Source
}

// Outcome is a verified removal, ready to be shown.
type Outcome struct {
	ProfileID   int64
	DisplayName string
	WasBlocked  bool
}

// Notification is a system notification for an Outcome.
type Notification struct {
	Title          string
	Body           string
	NotificationID int

	ActionLabels []string
	ActionIDs    []string
	ActionArgs   [][]string

	ChannelID          string
	ChannelName        string
	ChannelDescription string
}

// Dispatcher shows outcomes to the viewer.
type Dispatcher interface {
	// Toast shows a short message.
	Toast(text string)
	// Notify posts a system notification.
	Notify(n Notification) error
}

// FormatDisplayName renders a profile for the viewer. An empty or "null" name
// falls back to the raw ID.
func FormatDisplayName(name string, profileID int64) string {
	id := strconv.FormatInt(profileID, 10)
	if name == "" || name == "null" {
		return id
	}
	return name + " (" + id + ")"
}

// NotificationID returns the stable notification ID for the outcome. Blocked
// and unblocked outcomes for the same profile never collide.
func NotificationID(o Outcome) int {
	id := int(o.ProfileID % notificationIDRange)
	if id < 0 {
		id = -id
	}
	if o.WasBlocked {
		return blockedNotificationBase + id
	}
	return unblockedNotificationBase + id
}

// ToastText returns the toast message for the outcome.
func ToastText(o Outcome) string {
	if o.WasBlocked {
		return "Blocked by " + o.DisplayName
	}
	return "Unblocked by " + o.DisplayName
}

// NewNotification builds the system notification for the outcome.
func NewNotification(o Outcome) Notification {
	n := Notification{
		NotificationID: NotificationID(o),
		ActionLabels:   []string{copyIDLabel},
		ActionIDs:      []string{copyIDActionID},
		ActionArgs:     [][]string{{strconv.FormatInt(o.ProfileID, 10)}},
	}

	if o.WasBlocked {
		n.Title = "Blocked by User"
		n.Body = "You have been blocked by user " + o.DisplayName
		n.ChannelID = BlocksChannelID
		n.ChannelName = BlocksChannelName
		n.ChannelDescription = BlocksChannelDescription
	} else {
		n.Title = "Unblocked by " + o.DisplayName
		n.Body = o.DisplayName + " has unblocked you."
		n.ChannelID = UnblocksChannelID
		n.ChannelName = UnblocksChannelName
		n.ChannelDescription = UnblocksChannelDescription
	}
	return n
}
