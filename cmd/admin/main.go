package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"elecmate/internal/assessment"
	"elecmate/internal/auth"
	"elecmate/internal/config"
	"elecmate/internal/database"
)

func main() {
	var (
		username = flag.String("username", "", "initial admin username (required unless --banks is given)")
		banksDir = flag.String("banks", "", "directory of question bank JSON files to import")
		dbHost   = flag.String("db-host", "", "database host (optional, falls back to DATABASE_HOST)")
		dbPort   = flag.Int("db-port", 0, "database port (optional, falls back to DATABASE_PORT)")
		dbName   = flag.String("db-name", "", "database name (optional, falls back to POSTGRES_DB)")
		dbUser   = flag.String("db-user", "", "database user (optional, falls back to POSTGRES_USER)")
		dbPass   = flag.String("db-password", "", "database password (optional, falls back to POSTGRES_PASSWORD)")
		sslMode  = flag.String("db-sslmode", "", "database sslmode (optional, falls back to DATABASE_SSLMODE)")
	)
	flag.Parse()

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	if dir := strings.TrimSpace(*banksDir); dir != "" {
		if err := importBanks(db, dir); err != nil {
			log.Fatalf("import question banks: %v", err)
		}
		return
	}

	u := strings.TrimSpace(*username)
	if u == "" {
		log.Fatal("missing required flag: --username (or --banks to import question banks)")
	}
	if err := seedAdmin(db, u); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
}

func seedAdmin(db *gorm.DB, username string) error {
	var existing database.User
	switch err := db.Where("username = ?", username).First(&existing).Error; {
	case err == nil:
		return fmt.Errorf("user %q already exists", username)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("query user: %w", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := database.User{
		Username:           username,
		PasswordHash:       hashed,
		Role:               database.RoleAdmin,
		MustChangePassword: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created initial admin account (password change forced on first login):\n")
	fmt.Printf("Username: %s\n", username)
	fmt.Printf("Initial password: %s\n", password)
	fmt.Printf("Note: log in and change the password now; it is shown only once.\n")
	return nil
}

// importBanks validates and upserts every *.json bank in dir. A bank that
// fails validation aborts the import so half-broken content never ships.
func importBanks(db *gorm.DB, dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("glob %q: %w", dir, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no *.json files found in %q", dir)
	}

	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %q: %w", path, err)
		}

		var bank assessment.Bank
		if err := json.Unmarshal(raw, &bank); err != nil {
			return fmt.Errorf("decode %q: %w", path, err)
		}
		if bank.Slug == "" {
			bank.Slug = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		if err := assessment.ValidateBank(&bank); err != nil {
			return fmt.Errorf("bank %q invalid: %w", bank.Slug, err)
		}

		questions, err := json.Marshal(bank.Questions)
		if err != nil {
			return fmt.Errorf("encode questions for %q: %w", bank.Slug, err)
		}

		row := database.QuestionBank{
			Slug:          bank.Slug,
			Title:         bank.Title,
			PassThreshold: bank.Threshold(),
			Questions:     datatypes.JSON(questions),
		}

		var existing database.QuestionBank
		switch err := db.Where("slug = ?", bank.Slug).First(&existing).Error; {
		case err == nil:
			if err := db.Model(&existing).Updates(map[string]any{
				"title":          row.Title,
				"pass_threshold": row.PassThreshold,
				"questions":      row.Questions,
			}).Error; err != nil {
				return fmt.Errorf("update bank %q: %w", bank.Slug, err)
			}
			fmt.Printf("Updated bank %q (%d questions)\n", bank.Slug, len(bank.Questions))
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := db.Create(&row).Error; err != nil {
				return fmt.Errorf("create bank %q: %w", bank.Slug, err)
			}
			fmt.Printf("Imported bank %q (%d questions)\n", bank.Slug, len(bank.Questions))
		default:
			return fmt.Errorf("query bank %q: %w", bank.Slug, err)
		}
	}
	return nil
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
