package main

import (
	"log"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	sheet, err := OpenSheet(cfg.SheetPath)
	if err != nil {
		log.Fatalf("Failed to open spreadsheet: %v", err)
	}

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	auth, err := api.AuthTest()
	if err != nil {
		log.Fatalf("Slack auth failed: %v", err)
	}

	bot := NewBot(cfg, api, sheet, db, auth.UserID)
	bot.StartWorkers(cfg.WorkerConcurrency)
	StartSummaryScheduler(cfg, db, api, sheet)

	log.Println("Starting Receipt Bot...")
	if err := StartSlackBot(bot); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
