package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/publicq/examguard/internal/config"
	"github.com/publicq/examguard/internal/database"
	"github.com/publicq/examguard/internal/logger"
	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/repository"
	"github.com/publicq/examguard/internal/service"
)

// import-students bulk-creates student accounts from a CSV file with
// email,name,password rows. Existing accounts are skipped.
func main() {
	var csvPath string
	flag.StringVar(&csvPath, "file", "students.csv", "Path to CSV file (email,name,password)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	studentRepo := repository.NewStudentRepository(pool)
	authService := service.NewAuthService(cfg, rdb)
	studentService := service.NewStudentService(studentRepo, authService)

	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatal().Err(err).Str("file", csvPath).Msg("Failed to open CSV")
	}
	defer f.Close()

	fmt.Printf("=== Importing students from %s ===\n", csvPath)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 3

	imported := 0
	skipped := 0
	line := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			fmt.Printf("line %d: malformed row, skipping (%v)\n", line, err)
			skipped++
			continue
		}

		req := &model.CreateStudentRequest{
			Email:    record[0],
			Name:     record[1],
			Password: record[2],
		}

		if _, err := studentService.Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				fmt.Printf("line %d: %s already exists, skipping\n", line, req.Email)
			} else {
				fmt.Printf("line %d: failed to create %s (%v)\n", line, req.Email, err)
			}
			skipped++
			continue
		}
		imported++
	}

	fmt.Printf("\nDone. Imported %d students, skipped %d.\n", imported, skipped)
}
