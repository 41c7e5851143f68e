package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// StartSummaryScheduler posts a monthly spending summary on a cron
// schedule (5-field expression, e.g. "0 9 1 * *" for 9am on the 1st).
// The summary covers the previous calendar month.
func StartSummaryScheduler(cfg Config, db *sql.DB, api *slack.Client, sheet *Sheet) {
	schedule := strings.TrimSpace(cfg.SummaryCron)
	if schedule == "" || cfg.SummaryChannelID == "" {
		log.Println("Monthly summary disabled (summary_cron or summary_channel_id not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid summary_cron '%s': %v — monthly summary disabled", schedule, err)
		return
	}
	log.Printf("Monthly summary scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			log.Printf("Next monthly summary at %s", next.Format("Mon Jan 2 15:04"))

			time.Sleep(next.Sub(now))

			month := previousMonth(time.Now())
			if err := PostMonthlySummary(cfg, db, api, sheet, month); err != nil {
				log.Printf("summary post failed month=%s err=%v", month, err)
			}
		}
	}()
}

// PostMonthlySummary posts the per-category breakdown for the given
// YYYY-MM month and mirrors it to a summary worksheet.
func PostMonthlySummary(cfg Config, db *sql.DB, api *slack.Client, sheet *Sheet, month string) error {
	totals, monthTotal, err := MonthlyCategoryTotals(db, month)
	if err != nil {
		return fmt.Errorf("monthly totals: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*%s の支出まとめ*\n", month))
	if len(totals) == 0 {
		sb.WriteString("この月の記録はありません。")
	} else {
		for _, t := range totals {
			sb.WriteString(fmt.Sprintf("• %s: %s円\n", t.Category, formatAmount(t.Total)))
		}
		sb.WriteString(fmt.Sprintf("*合計: %s円*", formatAmount(monthTotal)))
	}

	_, _, err = api.PostMessage(cfg.SummaryChannelID, slack.MsgOptionText(sb.String(), false))
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}

	if len(totals) > 0 {
		if err := sheet.WriteSummary(month+" summary", totals, monthTotal); err != nil {
			log.Printf("summary sheet write failed month=%s err=%v", month, err)
		}
	}
	log.Printf("summary posted month=%s categories=%d total=%s", month, len(totals), formatAmount(monthTotal))
	return nil
}

// previousMonth returns the YYYY-MM month before the one containing t.
func previousMonth(t time.Time) string {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return firstOfMonth.AddDate(0, 0, -1).Format("2006-01")
}

func formatAmount(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
