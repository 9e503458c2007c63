package sendemail

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"verdant/pkg/captable"
	"verdant/pkg/registry"
)

// Notifier mails registry activity to operators. Sends run in the
// background so registry writes never wait on sendgrid.
type Notifier struct {
	email      EmailService
	recipients []string
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

func NewNotifier(email EmailService, recipients []string, logger zerolog.Logger) *Notifier {
	clean := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	return &Notifier{email: email, recipients: clean, logger: logger}
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (n *Notifier) StartupRegistered(ctx context.Context, s registry.Startup) {
	subject := fmt.Sprintf("Startup #%d registered: %s", s.ID, s.Name)
	text := fmt.Sprintf("%s was registered by %s at %s.\nStartup hash: %s\n",
		s.Name, s.Founder.Hex(), s.CreatedAt.Format("2006-01-02 15:04:05 MST"), s.Hash.Hex())
	body := fmt.Sprintf("<p><strong>%s</strong> was registered by <code>%s</code> at %s.</p><p>Startup hash: <code>%s</code></p>",
		html.EscapeString(s.Name), s.Founder.Hex(), s.CreatedAt.Format("2006-01-02 15:04:05 MST"), s.Hash.Hex())
	n.send(subject, text, body)
}

func (n *Notifier) CapTableUpdated(ctx context.Context, table registry.CapTable) {
	summary := captable.Breakdown(table.Holders(), table.Shares())

	var text, rows strings.Builder
	for _, h := range summary.Holdings {
		fmt.Fprintf(&text, "%s  %s shares  %s%%\n", h.Holder.Hex(), h.Shares, h.Percent)
		fmt.Fprintf(&rows, "<tr><td><code>%s</code></td><td>%s</td><td>%s%%</td></tr>", h.Holder.Hex(), h.Shares, h.Percent)
	}
	subject := fmt.Sprintf("Cap table updated for startup #%d", table.StartupID)
	body := fmt.Sprintf("<p>Total shares: %s</p><table>%s</table>", summary.TotalShares, rows.String())
	n.send(subject, fmt.Sprintf("Total shares: %s\n%s", summary.TotalShares, text.String()), body)
}

func (n *Notifier) send(subject, text, body string) {
	for _, to := range n.recipients {
		n.wg.Add(1)
		go func(to string) {
			defer n.wg.Done()
			if err := n.email.SendEmail(subject, to, text, body); err != nil {
				n.logger.Error().Err(err).Str("to", to).Str("subject", subject).Msg("notification email failed")
			}
		}(to)
	}
}

// Wait blocks until queued emails have been attempted.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
