package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"virtualaddresshub/backend/internal/auth"
	"virtualaddresshub/backend/internal/config"
	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/storage"
	"virtualaddresshub/backend/internal/storage/memory"
	sqlstore "virtualaddresshub/backend/internal/storage/sql"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-admin <email> <password> <username> [super|admin]")
		os.Exit(1)
	}

	email := os.Args[1]
	password := os.Args[2]
	username := os.Args[3]
	roleStr := "admin"
	if len(os.Args) >= 5 {
		roleStr = os.Args[4]
	}

	var role domain.UserRole
	if roleStr == "super" {
		role = domain.RoleSuper
	} else {
		role = domain.RoleAdmin
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			fmt.Printf("Failed to connect to database: %v\n", err)
			os.Exit(1)
		}
	} else {
		store = memory.NewStore()
	}
	defer store.Close()

	if !auth.ValidateEmail(email) {
		fmt.Println("Invalid email format")
		os.Exit(1)
	}

	if err := auth.ValidatePassword(password); err != nil {
		fmt.Printf("Invalid password: %v\n", err)
		os.Exit(1)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		fmt.Printf("Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hashedPassword,
		Role:         role,
		KycStatus:    domain.KycStatusVerified,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := store.CreateUser(user); err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Admin user created\n")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Email:    %s\n", user.Email)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Role:     %s\n", user.Role)
	if cfg.Database.Type == "" {
		fmt.Println("\nNote: the in-memory store is configured, so this user does not")
		fmt.Println("persist. Configure a database to create durable admin accounts.")
	}
}
