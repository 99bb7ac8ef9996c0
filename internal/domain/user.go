package domain

import "time"

// User is the root document for one account. All financial data lives in
// subcollections under it; no cross-user access ever happens.
type User struct {
	ID                string     `firestore:"-" json:"id"`
	GmailConnected    bool       `firestore:"gmailConnected" json:"gmail_connected"`
	GmailRefreshToken string     `firestore:"gmailRefreshToken" json:"-"`
	GmailConnectedAt  *time.Time `firestore:"gmailConnectedAt" json:"gmail_connected_at,omitempty"`
	LastSyncAt        *time.Time `firestore:"lastSyncAt" json:"last_sync_at,omitempty"`
}
