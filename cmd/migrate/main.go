package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"parley-chat/config"
	"parley-chat/internal/domain/social"
	"parley-chat/internal/repository"
	"parley-chat/pkg/database"

	"github.com/google/uuid"
)

const usage = `
Parley Chat - Social Graph CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create or update the social graph tables and the upload ledger (groups, group_members, user_blocks, uploads)
  status      Show database connection status and row counts
  seed-dev    Load a development fixture

Flags:
  -fixture string   JSON fixture for seed-dev (default: built-in demo data)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev
  go run cmd/migrate/main.go -fixture fixtures/social.json seed-dev
`

func main() {
	fixturePath := flag.String("fixture", "", "JSON fixture for seed-dev")

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
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch command {
	case "up":
		log.Println("🚀 Running migrations UP...")
		if err := repository.MigrateSocial(db); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		log.Println("✅ Migrations completed successfully!")

	case "status":
		log.Println("🔍 Checking database status...")
		if err := database.Ping(ctx, db); err != nil {
			log.Fatalf("❌ Database connection failed: %v", err)
		}
		log.Println("✅ Database connection: OK")
		for _, table := range []string{"groups", "group_members", "user_blocks", "uploads"} {
			count, err := database.TableCount(ctx, db, table)
			if err != nil {
				log.Printf("❌ Table %-15s %v", table, err)
				continue
			}
			log.Printf("✅ Table %-15s exists (%d rows)", table, count)
		}

	case "seed-dev":
		log.Println("🌱 Seeding database (development mode)...")
		fx, err := loadFixture(*fixturePath)
		if err != nil {
			log.Fatalf("❌ Reading fixture failed: %v", err)
		}
		if err := repository.MigrateSocial(db); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		inserted, err := repository.NewGormSocialRepository(db).Seed(ctx, fx)
		if err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
		log.Println("📊 Seed Summary:")
		log.Printf("   - Groups: %d", len(fx.Groups))
		log.Printf("   - Members: %d", len(fx.Members))
		log.Printf("   - Blocks: %d", len(fx.Blocks))
		log.Printf("   - Rows inserted: %d", inserted)
		log.Println("✅ Development seeding completed!")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func loadFixture(path string) (repository.SocialFixture, error) {
	if path == "" {
		return demoFixture(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return repository.SocialFixture{}, err
	}
	var fx repository.SocialFixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return repository.SocialFixture{}, err
	}
	return fx, nil
}

// demoFixture uses fixed ids so tokens minted for local testing stay valid across reseeds.
func demoFixture() repository.SocialFixture {
	alice := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	bob := uuid.MustParse("22222222-2222-4222-8222-222222222222")
	carol := uuid.MustParse("33333333-3333-4333-8333-333333333333")
	general := uuid.MustParse("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa")
	announcements := uuid.MustParse("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb")
	now := time.Now().UTC()

	return repository.SocialFixture{
		Groups: []social.Group{
			{ID: general, Name: "general", CreatedAt: now},
			{ID: announcements, Name: "announcements", AdminsOnly: true, CreatedAt: now},
		},
		Members: []social.GroupMember{
			{GroupID: general, UserID: alice, Role: social.RoleOwner, JoinedAt: now},
			{GroupID: general, UserID: bob, Role: social.RoleMember, JoinedAt: now},
			{GroupID: general, UserID: carol, Role: social.RoleMember, JoinedAt: now},
			{GroupID: announcements, UserID: alice, Role: social.RoleAdmin, JoinedAt: now},
			{GroupID: announcements, UserID: bob, Role: social.RoleMember, JoinedAt: now},
		},
		Blocks: []social.Block{
			{BlockerID: carol, BlockedID: bob, CreatedAt: now},
		},
	}
}
