package natsc

import "github.com/nats-io/nuid"

// InboxPrefix is the subject prefix of generated reply inboxes.
const InboxPrefix = "_INBOX."

// NewInbox returns a unique inbox subject usable as a reply address.
func NewInbox() string {
	return InboxPrefix + nuid.Next()
}
