package main

import (
	"bytes"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

// Bot ties the Slack client to the work queue, the review table and the
// two sinks (spreadsheet and ledger).
type Bot struct {
	cfg       Config
	api       *slack.Client
	queue     *Queue
	reviews   *ReviewTable
	sheet     *Sheet
	db        *sql.DB
	botUserID string

	workers sync.WaitGroup
}

func NewBot(cfg Config, api *slack.Client, sheet *Sheet, db *sql.DB, botUserID string) *Bot {
	return &Bot{
		cfg:       cfg,
		api:       api,
		queue:     NewQueue(),
		reviews:   NewReviewTable(),
		sheet:     sheet,
		db:        db,
		botUserID: botUserID,
	}
}

// StartWorkers launches n workers draining the shared queue.
func (b *Bot) StartWorkers(n int) {
	for i := 0; i < n; i++ {
		b.workers.Add(1)
		go func(id int) {
			defer b.workers.Done()
			b.workerLoop(id)
		}(i)
	}
	log.Printf("workers started count=%d", n)
}

// Drain stops the workers after the queue empties: one shutdown token per
// worker, each consumed exactly once.
func (b *Bot) Drain(n int) {
	for i := 0; i < n; i++ {
		b.queue.Enqueue(WorkItem{Kind: KindShutdown})
	}
	b.workers.Wait()
	log.Printf("workers drained pending_reviews=%d", b.reviews.Len())
}

func (b *Bot) workerLoop(id int) {
	for {
		item := b.queue.Dequeue()
		switch item.Kind {
		case KindSubmission, KindReanalysis:
			b.processItem(item)
		case KindShutdown:
			log.Printf("worker stopping id=%d", id)
			return
		default:
			log.Printf("worker unknown kind id=%d kind=%d", id, item.Kind)
		}
	}
}

// processItem runs the full extraction for one queued image and posts the
// result for review.
func (b *Bot) processItem(item WorkItem) {
	start := time.Now()
	b.editMessage(item.ChannelID, item.StatusMsgID,
		fmt.Sprintf("画像解析中… (キュー残り: %d)", b.queue.Len()))

	data := item.ImageData
	if len(data) == 0 {
		var err error
		data, err = b.downloadFile(item.FileURL)
		if err != nil {
			log.Printf("worker download failed file=%s err=%v", item.FileName, err)
			b.editMessage(item.ChannelID, item.StatusMsgID,
				"画像のダウンロードに失敗しました: "+item.FileName)
			return
		}
	}

	normalized, err := normalizeImage(data, maxImageSide)
	if err != nil {
		log.Printf("worker image decode failed file=%s err=%v", item.FileName, err)
		b.editMessage(item.ChannelID, item.StatusMsgID,
			"画像を読み込めませんでした: "+item.FileName)
		return
	}

	b.editMessage(item.ChannelID, item.StatusMsgID, "LLM解析中…")

	result, missing := runExtraction(b.cfg, normalized)
	log.Printf("worker extraction done file=%s elapsed=%s missing=%d",
		item.FileName, time.Since(start).Round(time.Millisecond), len(missing))

	deadline := time.Now().Add(b.cfg.ReviewTimeout())
	body := resultMessage(result, missing, deadline)
	resultTS, err := b.postReply(item.ChannelID, item.StatusMsgID, body)
	if err != nil {
		log.Printf("worker result post failed file=%s err=%v", item.FileName, err)
		return
	}

	for _, name := range []string{reactionReanalyze, reactionAccept, reactionReject, reactionFlag} {
		if err := b.api.AddReaction(name, slack.NewRefToMessage(item.ChannelID, resultTS)); err != nil {
			log.Printf("worker add reaction failed name=%s err=%v", name, err)
		}
	}

	entry := &PendingReview{
		ID:          resultTS,
		Result:      result,
		ImageData:   normalized,
		ChannelID:   item.ChannelID,
		StatusMsgID: item.StatusMsgID,
		Content:     body,
		CreatedAt:   time.Now(),
	}
	b.reviews.Add(entry)
	b.reviews.Arm(resultTS, b.cfg.ReviewTimeout(), b.autoResolve)

	if item.Kind == KindReanalysis && item.OriginalMsgID != "" {
		b.reviews.Remove(item.OriginalMsgID)
	}

	b.editMessage(item.ChannelID, item.StatusMsgID,
		fmt.Sprintf("処理完了: %s (所要 %s)", item.FileName, time.Since(start).Round(time.Second)))
}

// handleDisposition applies a terminal reaction to a pending review.
// Exactly one of accept/reject/flag/timeout wins the claim.
func (b *Bot) handleDisposition(channelID, ts, reaction, user string) {
	if reaction == reactionReanalyze {
		b.handleReanalyze(channelID, ts, user)
		return
	}

	entry, ok := b.reviews.TryMarkProcessed(ts)
	if !ok {
		return
	}

	rec := entry.Result.Record()
	switch reaction {
	case reactionAccept:
		if !b.sheet.AppendRecord(rec) {
			b.postMessage(channelID, "スプレッドシートへの追加中にエラーが発生しました。")
		}
		if err := InsertReceiptRecord(b.db, rec, "accept", user, channelID, ts); err != nil {
			log.Printf("ledger insert failed disposition=accept err=%v", err)
		}
		b.appendAudit(entry, fmt.Sprintf("✅ <@%s> が承認しました。スプレッドシートに追加済みです。", user))
	case reactionReject:
		if err := InsertReceiptRecord(b.db, rec, "reject", user, channelID, ts); err != nil {
			log.Printf("ledger insert failed disposition=reject err=%v", err)
		}
		b.appendAudit(entry, fmt.Sprintf("❌ <@%s> が破棄しました。この結果は記録されません。", user))
	case reactionFlag:
		rec.NeedsFix = true
		if !b.sheet.AppendRecord(rec) {
			b.postMessage(channelID, "スプレッドシートへの追加中にエラーが発生しました。")
		}
		if err := InsertReceiptRecord(b.db, rec, "flag", user, channelID, ts); err != nil {
			log.Printf("ledger insert failed disposition=flag err=%v", err)
		}
		b.appendAudit(entry, fmt.Sprintf("⚠️ <@%s> が要修正として記録しました。スプレッドシートに追加済みです。", user))
	}
	b.reviews.Remove(ts)
	log.Printf("review resolved ts=%s disposition=%s user=%s", ts, reaction, user)
}

// handleReanalyze re-queues the original image for a full re-run. The old
// entry stays in the table until the new result is posted.
func (b *Bot) handleReanalyze(channelID, ts, user string) {
	entry, status := b.reviews.TryBeginReanalysis(ts)
	switch status {
	case ReanalysisAlreadyRunning, ReanalysisEntryClaimed, ReanalysisNotFound:
		return
	}

	if len(entry.ImageData) == 0 {
		b.appendAudit(entry, "再解析できません: 元画像が保持されていません。")
		b.reviews.AbortReanalysis(ts)
		return
	}

	pos := b.queue.Enqueue(WorkItem{
		Kind:          KindReanalysis,
		ChannelID:     channelID,
		ImageData:     entry.ImageData,
		FileName:      "(再解析)",
		OriginalMsgID: ts,
		StatusMsgID:   entry.StatusMsgID,
		EnqueuedAt:    time.Now(),
	})
	b.appendAudit(entry, fmt.Sprintf("🔄 <@%s> の依頼で再解析をキューに追加しました (位置: %d)。", user, pos))
	log.Printf("review reanalysis queued ts=%s user=%s pos=%d", ts, user, pos)
}

// autoResolve fires when the review timeout elapses before any reaction.
// The record is kept, marked as needing a fix.
func (b *Bot) autoResolve(ts string) {
	entry, ok := b.reviews.TryMarkProcessed(ts)
	if !ok {
		return
	}

	rec := entry.Result.Record()
	rec.NeedsFix = true
	if !b.sheet.AppendRecord(rec) {
		b.postMessage(entry.ChannelID, "自動追加中にエラーが発生しました。")
	}
	if err := InsertReceiptRecord(b.db, rec, "auto_flag", "", entry.ChannelID, ts); err != nil {
		log.Printf("ledger insert failed disposition=auto_flag err=%v", err)
	}
	b.appendAudit(entry, "⏰ 時間切れのため要修正として自動追加しました。")
	b.reviews.Remove(ts)
	log.Printf("review auto resolved ts=%s", ts)
}

func (b *Bot) postMessage(channelID, text string) (string, error) {
	_, ts, err := b.api.PostMessage(channelID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("slack post failed channel=%s err=%v", channelID, err)
	}
	return ts, err
}

func (b *Bot) postReply(channelID, threadTS, text string) (string, error) {
	_, ts, err := b.api.PostMessage(channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS))
	if err != nil {
		log.Printf("slack reply failed channel=%s err=%v", channelID, err)
	}
	return ts, err
}

func (b *Bot) editMessage(channelID, ts, text string) {
	if ts == "" {
		return
	}
	_, _, _, err := b.api.UpdateMessage(channelID, ts, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("slack update failed channel=%s ts=%s err=%v", channelID, ts, err)
	}
}

// appendAudit appends a line to the result message so the decision history
// stays visible in one place.
func (b *Bot) appendAudit(entry *PendingReview, line string) {
	content := b.reviews.AppendContent(entry.ID, line)
	if content == "" {
		content = entry.Content + "\n" + line
	}
	_, _, _, err := b.api.UpdateMessage(entry.ChannelID, entry.ID, slack.MsgOptionText(content, false))
	if err != nil {
		log.Printf("slack audit update failed ts=%s err=%v", entry.ID, err)
	}
}

func (b *Bot) downloadFile(url string) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.api.GetFile(url, &buf); err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	return buf.Bytes(), nil
}

// resultMessage renders the extraction result for human review.
func resultMessage(result ExtractionResult, missing []string, deadline time.Time) string {
	var sb strings.Builder
	sb.WriteString("*解析結果*\n```")
	sb.WriteString(resultJSON(result))
	sb.WriteString("```\n")
	if len(missing) > 0 {
		sb.WriteString("⚠️ 次の項目を読み取れませんでした: ")
		sb.WriteString(strings.Join(missing, ", "))
		sb.WriteString(" (❓ で再解析できます)\n")
	}
	sb.WriteString(fmt.Sprintf("リアクションで操作: ✅ 承認 / ❌ 破棄 / ⚠️ 要修正 / ❓ 再解析\n%s までに操作がない場合、要修正として自動追加されます。",
		deadline.Format("15:04:05")))
	return sb.String()
}
