package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classline/config"
	"classline/internal/domain/user"
	"classline/internal/repository"
	"classline/pkg/database"
	classline_errors "classline/pkg/errors"
)

const usage = `
Classline - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up       Apply all SQL migrations
  status   Show database connection status
  seed     Seed a demo instructor and student

Flags:
  -migrations string  Path to migrations directory (default "migrations")

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	ctx := context.Background()
	if err := database.Connect(ctx, cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch command {
	case "up":
		runMigrationsUp(ctx, *migrationsDir)
	case "status":
		showStatus(ctx)
	case "seed":
		runSeed(ctx)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context, migrationsDir string) {
	log.Println("Running migrations...")

	if err := database.ApplyRawMigrations(ctx, migrationsDir); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}

func showStatus(ctx context.Context) {
	if err := database.HealthCheck(ctx); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Database connection: OK")

	for _, table := range []string{"users", "conversations", "messages"} {
		var count int64
		err := database.Pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			log.Printf("Table %-15s missing (%v)", table, err)
			continue
		}
		log.Printf("Table %-15s exists (%d rows)", table, count)
	}
}

func runSeed(ctx context.Context) {
	log.Println("Seeding demo accounts...")

	repo := repository.NewUserRepository(database.Pool)

	accounts := []struct {
		name     string
		role     user.Role
		email    string
		password string
	}{
		{"Dana Instructor", user.RoleInstructor, "instructor@classline.dev", "Instructor@123"},
		{"Sam Student", user.RoleStudent, "student@classline.dev", "Student@123"},
	}

	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}

		now := time.Now().UTC()
		u := user.User{
			ID:           uuid.New(),
			DisplayName:  a.name,
			Role:         a.role,
			Email:        a.email,
			PasswordHash: string(hash),
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := repo.Create(ctx, &u); err != nil {
			if err == classline_errors.ErrAlreadyExists {
				log.Printf("Account %s already exists, skipping", a.email)
				continue
			}
			log.Fatalf("Failed to seed %s: %v", a.email, err)
		}
		log.Printf("Created %s account: %s (password %s)", a.role, a.email, a.password)
	}

	log.Println("Seeding completed")
}
