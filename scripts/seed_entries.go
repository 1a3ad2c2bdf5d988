package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"diary/internal/blob"
	"diary/internal/diary"
	"diary/internal/logging"
	"diary/internal/models"
	"diary/internal/store/sqlstore"

	"github.com/brianvoe/gofakeit/v6"
)

// Fills a development database with a year of diary entries for one user.
func main() {
	driver := flag.String("driver", "sqlite3", "database driver")
	conn := flag.String("db", "./diary.db", "database connection string")
	uploads := flag.String("uploads", "./uploads", "upload directory")
	username := flag.String("user", "demo", "username to seed")
	password := flag.String("password", "demo-password", "password when the user is created")
	days := flag.Int("days", 365, "how many days back to seed")
	flag.Parse()

	ctx := context.Background()
	gofakeit.Seed(time.Now().UnixNano())

	store, err := sqlstore.New(*driver, *conn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	blobs, err := blob.NewFileSystem(*uploads)
	if err != nil {
		log.Fatal(err)
	}
	svc := diary.New(store, blobs, logging.New(os.Stderr, "development", "warn"))

	userID, err := svc.Register(ctx, *username, *password)
	if errors.Is(err, models.ErrDuplicateUsername) {
		u, err := svc.Verify(ctx, *username, *password)
		if err != nil {
			log.Fatalf("User %s exists and the password does not match: %v", *username, err)
		}
		userID = u.ID
	} else if err != nil {
		log.Fatalf("Could not create user %s: %v", *username, err)
	}

	now := time.Now()
	inserted := 0
	for day := now.AddDate(0, 0, -*days); !day.After(now); day = day.AddDate(0, 0, 1) {
		// roughly every other day
		if rand.Intn(2) == 0 {
			continue
		}
		title := ""
		if rand.Intn(4) > 0 {
			title = gofakeit.Sentence(rand.Intn(4) + 2)
		}
		content := gofakeit.Paragraph(rand.Intn(3)+1, rand.Intn(4)+2, 12, "\n\n")

		if _, err := svc.SaveEntry(ctx, userID, day.Format(models.DateLayout), title, content); err != nil {
			log.Printf("Error saving entry for %s: %v", day.Format(models.DateLayout), err)
			continue
		}
		inserted++
	}

	fmt.Printf("Inserted %d entries for %s over the past %d days\n", inserted, *username, *days)
}
