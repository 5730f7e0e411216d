package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/database"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/logger"
	"github.com/proctorly/proctorly-backend/internal/model"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	var store docstore.Store = docstore.NewRedisStore(rdb, log)
	if cfg.MirrorDir != "" {
		mirror, err := docstore.NewFileStore(cfg.MirrorDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.MirrorDir).Msg("Failed to open mirror directory")
		}
		store = docstore.NewFallback(store, mirror, log)
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Set Admin Credentials ===")

	if _, err := store.Get(ctx, config.ColAdmin, config.AdminDocID); err == nil {
		fmt.Print("Admin credentials already exist. Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted")
			return
		}
	}

	// Username
	fmt.Print("Enter Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if username == "" {
		fmt.Println("Error: Username is required")
		return
	}

	// Password
	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// Confirm
	fmt.Print("Confirm Password: ")
	byteConfirm, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	fmt.Println()
	if string(byteConfirm) != password {
		fmt.Println("Error: Passwords do not match")
		return
	}

	// ─── Save ──────────────────────────────────────────────────────────
	doc, err := docstore.Encode(model.AdminCredentials{
		Username: username,
		Password: password,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode credentials")
	}
	if err := store.Set(ctx, config.ColAdmin, config.AdminDocID, doc); err != nil {
		log.Fatal().Err(err).Msg("Failed to save credentials")
	}

	fmt.Printf("Admin credentials saved for %q\n", username)
}
