package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"MarketShard/internal/model"
)

// maxListedFailures caps the failures spelled out in one message.
const maxListedFailures = 10

// FormatRunReport renders a run summary as a Telegram HTML message.
func FormatRunReport(r *model.RunReport) string {
	var b strings.Builder
	counts := r.Counts()

	icon := "✅"
	switch {
	case r.PersistErr != nil || r.RunErr != nil:
		icon = "❌"
	case counts.Failed > 0 || len(r.FailedChunks()) > 0:
		icon = "⚠️"
	}

	b.WriteString(fmt.Sprintf("%s <b>MarketShard run</b> | %s\n\n", icon, r.StartedAt.UTC().Format("2006-01-02 15:04 MST")))
	b.WriteString(fmt.Sprintf("Symbols: %d (ok %d, skipped %d, failed %d)\n", counts.Total(), counts.OK, counts.Skipped, counts.Failed))
	b.WriteString(fmt.Sprintf("Chunks: %d (failed %d)\n", len(r.Chunks), len(r.FailedChunks())))
	b.WriteString(fmt.Sprintf("Ledger rows upserted: %d\n", r.Upserted))
	b.WriteString(fmt.Sprintf("Duration: %s\n", r.Duration().Round(time.Second)))

	if r.RunErr != nil {
		b.WriteString(fmt.Sprintf("\nRun: %s\n", html.EscapeString(r.RunErr.Error())))
	}
	if r.PersistErr != nil {
		b.WriteString(fmt.Sprintf("\nPersistence: %s\n", html.EscapeString(r.PersistErr.Error())))
	}

	if chunks := r.FailedChunks(); len(chunks) > 0 {
		b.WriteString("\n<b>Failed chunks:</b>\n")
		for i, c := range chunks {
			if i == maxListedFailures {
				b.WriteString(fmt.Sprintf("  … and %d more\n", len(chunks)-maxListedFailures))
				break
			}
			b.WriteString(fmt.Sprintf("  #%d (%d symbols): %s\n", c.Index, c.Symbols, errText(c.Err)))
		}
	}

	if failures := r.Failures(); len(failures) > 0 {
		b.WriteString("\n<b>Failed symbols:</b>\n")
		for i, f := range failures {
			if i == maxListedFailures {
				b.WriteString(fmt.Sprintf("  … and %d more\n", len(failures)-maxListedFailures))
				break
			}
			b.WriteString(fmt.Sprintf("  %s [%s]: %s\n", html.EscapeString(f.Symbol), f.Reason, errText(f.Err)))
		}
	}

	return b.String()
}

func errText(err error) string {
	if err == nil {
		return "-"
	}
	return html.EscapeString(err.Error())
}
