// Package pdf prepares statement PDFs for extraction: strips password
// protection and rejects documents without a usable text layer before any
// model tokens are spent on them.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
)

// ErrWrongPassword is returned when the configured statement password does
// not open the PDF.
var ErrWrongPassword = errors.New("pdf: wrong password")

// minReadableChars is the text-layer threshold below which a PDF is treated
// as scanned.
const minReadableChars = 100

// Gate decrypts and screens statement PDFs.
type Gate struct {
	minChars int
	log      zerolog.Logger
}

// NewGate returns a Gate with the default readability threshold.
func NewGate(log zerolog.Logger) *Gate {
	return &Gate{
		minChars: minReadableChars,
		log:      log.With().Str("component", "pdf").Logger(),
	}
}

// Decrypt removes password protection from the PDF. Unencrypted documents
// pass through untouched; a password that fails to open the document yields
// ErrWrongPassword.
func (g *Gate) Decrypt(data []byte, password string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	var out bytes.Buffer
	err := api.Decrypt(bytes.NewReader(data), &out, conf)
	if err == nil {
		return out.Bytes(), nil
	}
	if isNotEncryptedError(err) {
		return data, nil
	}
	if isPasswordError(err) {
		return nil, fmt.Errorf("%w: %s", ErrWrongPassword, err)
	}
	return nil, fmt.Errorf("decrypt pdf: %w", err)
}

// IsReadable reports whether the PDF has enough extractable text to be worth
// sending for extraction. Scanned statements come back with a near-empty
// text layer and would need OCR instead.
func (g *Gate) IsReadable(data []byte) bool {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		g.log.Warn().Err(err).Msg("pdf could not be opened for text check")
		return false
	}
	defer doc.Close()

	total := 0
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue
		}
		total += len(strings.TrimSpace(text))
		if total >= g.minChars {
			return true
		}
	}
	return total >= g.minChars
}

// The decrypt library reports password and encryption problems only through
// error text, so classification has to sniff the message.
func isPasswordError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "authentication")
}

func isNotEncryptedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not encrypted")
}
