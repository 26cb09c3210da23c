package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/internal"
	"chat-sync/projection"
	"chat-sync/store"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

func main() {
	viewerID := flag.String("viewer", "", "User id whose chat list is rendered")
	chatID := flag.String("chat", "", "Render one chat's messages grouped by day instead of the chat list")
	flag.Parse()

	// 1. Load config
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in read-only mode; the server may hold the write lock.
	st, err := store.OpenReadOnly(config.BadgerFilepath, internal.GetLoggerFromString(config.LogLevel))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	if *chatID != "" {
		renderDayGroups(st, *viewerID, *chatID)
		return
	}
	renderChatList(st, *viewerID)
}

// renderChatList replays the store through the chat list projection, as if
// every document had arrived on the composite feed, then prints the rows.
func renderChatList(st *store.Store, viewerID string) {
	list := projection.NewChatList(viewerID)
	ctx := context.Background()
	for _, collection := range []domain.Collection{domain.Chats, domain.Messages, domain.Users} {
		docs, err := st.Documents(collection)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", collection, err)
		}
		for _, doc := range docs {
			_ = list.Consume(ctx, event.DocumentAdded{Document: doc})
		}
	}

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render("  Chats  "))
	table := newTable([]string{"Chat ID", "Title", "Last Message", "At"})
	for _, row := range list.Rows() {
		last, at := "", ""
		if row.LastMessage != nil {
			last = row.LastMessage.Content
			at = row.LastMessage.CreatedAt.Local().Format("15:04:05")
		}
		table.Append([]string{shorten(row.ChatID), row.Title, last, at})
	}
	table.Render()
}

func renderDayGroups(st *store.Store, viewerID, chatID string) {
	messages, err := st.ListMessages(chatID, 0)
	if err != nil {
		log.Fatalf("Failed to read messages: %v", err)
	}
	docs := make([]domain.Document, 0, len(messages))
	for _, message := range messages {
		docs = append(docs, message)
	}

	grouper := projection.NewDayGrouper(viewerID, time.Now)
	grouper.Rebuild(docs)

	for _, group := range grouper.Groups() {
		header := group.Timestamp
		if group.Today {
			header = "Today"
		}
		fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(" " + header + " "))
		table := newTable([]string{"Time", "From", "Content"})
		for _, view := range group.Messages {
			from := string(view.Ownership)
			table.Append([]string{view.Message.CreatedAt.Local().Format("15:04"), from, view.Message.Content})
		}
		table.Render()
		fmt.Println()
	}
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
