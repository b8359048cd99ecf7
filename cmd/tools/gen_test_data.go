package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"profilebook/client"
	"profilebook/domain"
	"profilebook/protocol"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const seedPassword = "Seed-Passw0rd!"

var sentences = []string{
	"Are you coming to the meetup on Thursday?",
	"I just pushed the photos from the trip",
	"Thanks for the recommendation, the book was great",
	"Can you review my profile description?",
	"Happy birthday! Hope you have a good one",
	"Did you see the new gallery layout?",
	"Lunch tomorrow?",
	"I moved, here is my new city",
}

// Seeds a running server with users and conversations through the public API.
func main() {
	users := flag.Int("users", 5, "number of users to register")
	messages := flag.Int("messages", 20, "messages sent by each user")
	parallel := flag.Int("parallel", 4, "concurrent senders")
	flag.Parse()

	cfg, err := client.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Render("config error: "+err.Error()))
		os.Exit(2)
	}
	if err := seed(context.Background(), cfg, *users, *messages, *parallel); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Render("seed failed: "+err.Error()))
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg client.Config, users, messages, parallel int) error {
	if users < 2 {
		return fmt.Errorf("at least two users are needed, got %d", users)
	}
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(" profilebook: seeding test data "))

	anonymous := client.NewHTTPStore(cfg.BaseURL, func() string { return "" }, cfg.RequestTimeout)
	accounts := make([]protocol.AccountResponse, 0, users)
	for range users {
		name := "seed" + uuid.NewString()[:8]
		account, err := anonymous.Register(ctx, name+"@example.com", name, seedPassword)
		if err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		accounts = append(accounts, account)
	}

	sent := make([]atomic.Int64, len(accounts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, account := range accounts {
		store := client.NewHTTPStore(cfg.BaseURL, func() string { return account.Token }, cfg.RequestTimeout)
		others := lo.Filter(accounts, func(a protocol.AccountResponse, _ int) bool { return a.UserID != account.UserID })
		g.Go(func() error {
			for range messages {
				to := others[rand.N(len(others))]
				if _, err := store.SendMessage(ctx, domain.SubjectID(to.UserID), lo.Sample(sentences)); err != nil {
					return fmt.Errorf("%s -> %s: %w", account.Username, to.Username, err)
				}
				sent[i].Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User ID", "Username", "Sent"})
	for i, account := range accounts {
		table.Append([]string{account.UserID, account.Username, strconv.FormatInt(sent[i].Load(), 10)})
	}
	table.Render()
	fmt.Printf("%s users share password %q\n", color.Green.Render("ready:"), seedPassword)
	return nil
}
