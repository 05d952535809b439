package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"ombra/auth"
	"ombra/codegen"
	"ombra/config"
	"ombra/db"
	"ombra/models"
	"ombra/policy"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	cfg.Validate()

	ctx := context.Background()
	store, err := db.NewFirestoreDB(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsPath)
	if err != nil {
		log.Fatalf("Failed to initialize Firestore: %v", err)
	}
	defer store.Close()

	log.Println("Starting database seeding...")

	if err := seedSecurityLevels(ctx, store); err != nil {
		log.Fatalf("Failed to seed security levels: %v", err)
	}
	if err := seedUsers(ctx, store); err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}
	if err := seedDriverProfiles(ctx, store); err != nil {
		log.Fatalf("Failed to seed driver profiles: %v", err)
	}

	log.Println("Database seeding completed")
}

func seedSecurityLevels(ctx context.Context, store *db.FirestoreDB) error {
	for _, cfg := range policy.Defaults() {
		c := cfg
		if err := store.PutSecurityLevel(ctx, &c); err != nil {
			return fmt.Errorf("failed to seed security level %s: %w", cfg.Level, err)
		}
		log.Printf("  Seeded security level: %s (x%.1f)", cfg.Level, cfg.PriceMultiplier)
	}
	return nil
}

func seedUsers(ctx context.Context, store *db.FirestoreDB) error {
	users := []struct {
		User     models.User
		Password string
	}{
		{
			User: models.User{
				UserID:        "user-admin",
				Username:      "admin",
				RealName:      "Operations Admin",
				AnonymousCode: "CORP-ADMIN1",
				Role:          models.RoleAdmin,
				LastLogin:     time.Now(),
			},
			Password: "Seed-admin-pw1",
		},
		{
			User: models.User{
				UserID:        "user-client-demo",
				Username:      "client_demo",
				RealName:      "Alex Varga",
				AnonymousCode: "OT-K7M2P4",
				Role:          models.RoleClient,
				LastLogin:     time.Now(),
			},
			Password: "Seed-client-pw1",
		},
		{
			User: models.User{
				UserID:        "user-driver-demo",
				Username:      "driver_demo",
				RealName:      "Sam Okafor",
				AnonymousCode: "DR-X9Q3W7",
				Role:          models.RoleDriver,
				LastLogin:     time.Now(),
			},
			Password: "Seed-driver-pw1",
		},
	}

	for _, u := range users {
		namespace := string(codegen.AnonymousCodeFor(u.User.Role))
		if err := store.ReserveCode(ctx, namespace, u.User.AnonymousCode); err != nil && err != db.ErrAlreadyExists {
			return fmt.Errorf("failed to reserve code %s: %w", u.User.AnonymousCode, err)
		}
		if err := store.CreateUser(ctx, &u.User); err != nil {
			return fmt.Errorf("failed to create user %s: %w", u.User.Username, err)
		}
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password for %s: %w", u.User.Username, err)
		}
		if err := store.StorePasswordHash(ctx, u.User.UserID, hash); err != nil {
			return fmt.Errorf("failed to store password for %s: %w", u.User.Username, err)
		}
		log.Printf("  Created user: %s (%s, %s)", u.User.Username, u.User.Role, u.User.AnonymousCode)
	}
	return nil
}

func seedDriverProfiles(ctx context.Context, store *db.FirestoreDB) error {
	profiles := []models.DriverProfile{
		{
			DriverID:           "user-driver-demo",
			DriverCode:         "DR-X9Q3W7",
			Rating:             4.8,
			CompletedMissions:  120,
			MaxSecurityLevel:   models.LevelConfidential,
			CertificationLevel: models.LevelConfidential,
			BackgroundTier:     2,
		},
	}

	for _, p := range profiles {
		profile := p
		if err := store.PutDriverProfile(ctx, &profile); err != nil {
			return fmt.Errorf("failed to seed driver profile %s: %w", p.DriverID, err)
		}
		log.Printf("  Seeded driver profile: %s (max level %s)", p.DriverCode, p.MaxSecurityLevel)
	}
	return nil
}
