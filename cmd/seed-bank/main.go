package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/database"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/logger"
	"github.com/proctorly/proctorly-backend/internal/model"
	"github.com/proctorly/proctorly-backend/internal/service"
)

// sampleBank is loaded when no -file is given, one question per
// section so a fresh install can run an exam end to end.
var sampleBank = []model.Question{
	{Text: "HTML stands for?", Options: []string{"Hyperlinks Text Markup", "Home Tool Markup", "Hyper Text Markup Language", "Hyperlinking Text Markdown"}, CorrectIndex: 2, Marks: 1, Category: model.CategorySynopsis},
	{Text: "Which tag defines paragraph?", Options: []string{"<p>", "<para>", "<pg>", "<par>"}, CorrectIndex: 0, Marks: 1, Category: model.CategoryMinorPractical},
	{Text: "Which method adds to array end?", Options: []string{"push", "pop", "shift", "unshift"}, CorrectIndex: 0, Marks: 2, Category: model.CategoryMajorPractical},
	{Text: "Does localStorage persist after browser restart?", Options: []string{"Yes", "No", "Sometimes", "Depends"}, CorrectIndex: 0, Marks: 1, Category: model.CategoryViva},
}

func main() {
	var bankFile string
	flag.StringVar(&bankFile, "file", "", "Path to a JSON array of questions (omit to seed the sample bank)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

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

	questions := sampleBank
	if bankFile != "" {
		data, err := os.ReadFile(bankFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", bankFile).Msg("Failed to read bank file")
		}
		questions = nil
		if err := json.Unmarshal(data, &questions); err != nil {
			log.Fatal().Err(err).Str("file", bankFile).Msg("Failed to parse bank file")
		}
	}

	questionService := service.NewQuestionService(store, log)
	n, err := questionService.Import(ctx, questions)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d questions\n", n)
}
