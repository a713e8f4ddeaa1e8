package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/config"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
)

func main() {
	defaultDSN := config.Default().MySQL.DSN
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		defaultDSN = v
	}

	dsn := flag.String("dsn", defaultDSN, "MySQL DSN")
	clean := flag.Bool("clean", false, "delete existing users, records and orders first")
	flag.Parse()

	logger, _ := config.NewLogger(config.Log{Level: "info", Format: "console"}, os.Stdout)

	if err := seed(context.Background(), *dsn, *clean, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}

func seed(ctx context.Context, dsn string, clean bool, logger zerolog.Logger) error {
	if _, err := storage.Migrate(dsn); err != nil {
		return err
	}

	db, err := storage.OpenMySQL(ctx, dsn, storage.PoolOptions{MaxOpenConns: 5, MaxIdleConns: 5})
	if err != nil {
		return err
	}
	defer db.Close()

	store := storage.NewMySQLAdapter(db)
	if clean {
		if err := store.Reset(ctx); err != nil {
			return err
		}
		logger.Info().Msg("records, orders and users cleaned up")
	}

	auth := service.NewAuthService(store, "", 0, logger)

	var admin, buyer *domain.User
	for _, u := range seedUsers {
		created, err := auth.Register(ctx, u.Email, u.Password, u.Name, u.Role)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		switch {
		case created.Role == domain.RoleAdmin && admin == nil:
			admin = created
		case created.Role == domain.RoleUser && buyer == nil:
			buyer = created
		}
	}
	logger.Info().Int("count", len(seedUsers)).Msg("seeded admin and regular users")

	if admin == nil {
		return fmt.Errorf("no admin user in seed data")
	}

	now := time.Now().UTC()
	ids := make([]string, 0, len(seedRecords))
	for i, r := range seedRecords {
		r.ID = uuid.NewString()
		r.CreatedBy = admin.ID
		// distinct timestamps keep the listing order stable
		r.Created = now.Add(-time.Duration(i) * time.Millisecond)
		r.LastModified = r.Created
		if err := store.Create(ctx, r); err != nil {
			return fmt.Errorf("seed record %s: %w", r.Album, err)
		}
		ids = append(ids, r.ID)
	}
	logger.Info().Int("count", len(ids)).Msg("inserted records")

	if buyer == nil {
		return fmt.Errorf("no regular user in seed data")
	}

	for _, id := range ids[:min(3, len(ids))] {
		err := store.CreateOrder(ctx, domain.Order{
			ID:        uuid.NewString(),
			RecordID:  id,
			UserID:    buyer.ID,
			Quantity:  1,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("seed order: %w", err)
		}
	}
	logger.Info().Str("user", buyer.Email).Msg("seeded sample orders")

	return nil
}
