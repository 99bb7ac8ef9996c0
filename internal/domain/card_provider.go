package domain

import "time"

// CardProvider identifies one recurring statement source: which sender to
// search for, which subject keyword to match, and the password the provider
// protects its statement PDFs with. The password is only ever stored
// encrypted.
type CardProvider struct {
	ID                 string    `firestore:"-" json:"id"`
	Name               string    `firestore:"name" json:"name"`
	EmailSenderPattern string    `firestore:"emailSenderPattern" json:"email_sender_pattern"`
	SubjectKeyword     string    `firestore:"subjectKeyword" json:"subject_keyword"`
	EncryptedPassword  string    `firestore:"encryptedPassword" json:"-"`
	AddedAt            time.Time `firestore:"addedAt" json:"added_at"`
}
