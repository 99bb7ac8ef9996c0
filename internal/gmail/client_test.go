package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"
)

func TestFlattenPartsFindsNestedPDF(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmailapi.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmailapi.MessagePart{
					{MimeType: "text/plain"},
					{MimeType: "text/html"},
				},
			},
			{
				MimeType: "application/pdf",
				Filename: "statement.pdf",
				Body:     &gmailapi.MessagePartBody{AttachmentId: "att-1"},
			},
		},
	}

	part := findPDFPart(flattenParts(payload))
	require.NotNil(t, part)
	assert.Equal(t, "att-1", part.Body.AttachmentId)
}

func TestFindPDFPartByFilename(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmailapi.MessagePart{
			{MimeType: "text/plain"},
			{
				MimeType: "application/octet-stream",
				Filename: "Statement_Jan.PDF",
				Body:     &gmailapi.MessagePartBody{AttachmentId: "att-2"},
			},
		},
	}

	part := findPDFPart(flattenParts(payload))
	require.NotNil(t, part)
	assert.Equal(t, "att-2", part.Body.AttachmentId)
}

func TestFindPDFPartNone(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmailapi.MessagePart{
			{MimeType: "text/plain"},
			{MimeType: "text/html"},
		},
	}

	assert.Nil(t, findPDFPart(flattenParts(payload)))
}

func TestDecodeBodyHandlesBothPaddings(t *testing.T) {
	raw := []byte("%PDF-1.7 minimal")

	padded := base64.URLEncoding.EncodeToString(raw)
	got, err := decodeBody(padded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	unpadded := base64.RawURLEncoding.EncodeToString(raw)
	got, err = decodeBody(unpadded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeBody("!!not-base64!!")
	assert.Error(t, err)
}
