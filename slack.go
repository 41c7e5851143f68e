package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Reaction names mapped to review dispositions.
const (
	reactionAccept    = "white_check_mark"
	reactionReject    = "x"
	reactionFlag      = "warning"
	reactionReanalyze = "question"
)

func StartSlackBot(b *Bot) error {
	client := socketmode.New(b.api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go handleEventsAPI(b, eventsAPIEvent)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleEventsAPI(b *Bot, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		handleMessage(b, ev)
	case *slackevents.ReactionAddedEvent:
		handleReactionAdded(b, ev)
	}
}

// handleMessage enqueues every image file attached to a channel message.
// Non-image attachments and other channels are ignored.
func handleMessage(b *Bot, ev *slackevents.MessageEvent) {
	if ev.BotID != "" || ev.User == b.botUserID {
		return
	}
	if b.cfg.TargetChannelID != "" && ev.Channel != b.cfg.TargetChannelID {
		return
	}
	if ev.SubType != "" && ev.SubType != "file_share" {
		return
	}

	for _, f := range ev.Files {
		if !isImageFilename(f.Name) {
			continue
		}
		statusTS, err := b.postMessage(ev.Channel, "画像を受け付けました: "+f.Name)
		if err != nil {
			continue
		}
		pos := b.queue.Enqueue(WorkItem{
			Kind:        KindSubmission,
			ChannelID:   ev.Channel,
			FileURL:     f.URLPrivateDownload,
			FileName:    f.Name,
			StatusMsgID: statusTS,
			EnqueuedAt:  time.Now(),
		})
		b.editMessage(ev.Channel, statusTS,
			fmt.Sprintf("画像をキューに追加しました: %s (位置: %d)", f.Name, pos))
		log.Printf("slack image queued file=%s user=%s pos=%d", f.Name, ev.User, pos)
	}
}

func handleReactionAdded(b *Bot, ev *slackevents.ReactionAddedEvent) {
	if ev.User == b.botUserID {
		return
	}
	if ev.Item.Type != "message" {
		return
	}
	if b.cfg.TargetChannelID != "" && ev.Item.Channel != b.cfg.TargetChannelID {
		return
	}
	switch ev.Reaction {
	case reactionAccept, reactionReject, reactionFlag, reactionReanalyze:
		b.handleDisposition(ev.Item.Channel, ev.Item.Timestamp, ev.Reaction, ev.User)
	}
}

func isImageFilename(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp", ".heic", ".gif"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
