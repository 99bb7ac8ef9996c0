package sync

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/domain"
)

// buildQuery assembles the Gmail search query for one card provider. A bare
// "@domain" sender pattern is widened to "*@domain" so any mailbox at the
// bank's domain matches.
func buildQuery(p domain.CardProvider, log zerolog.Logger) string {
	parts := []string{"has:attachment", "filename:pdf"}

	if p.EmailSenderPattern != "" {
		sender := p.EmailSenderPattern
		if strings.HasPrefix(sender, "@") {
			sender = "*" + sender
		}
		parts = append(parts, "from:"+sender)
	} else {
		log.Warn().Str("provider_id", p.ID).Msg("provider has no sender pattern, query will match all senders with PDF attachments")
	}

	if p.SubjectKeyword != "" {
		parts = append(parts, fmt.Sprintf("subject:%q", p.SubjectKeyword))
	} else {
		log.Warn().Str("provider_id", p.ID).Msg("provider has no subject keyword, query will match any subject with PDF attachments")
	}

	return strings.Join(parts, " ")
}
