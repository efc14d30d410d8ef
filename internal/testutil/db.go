// Package testutil builds in-memory databases and request contexts for tests.
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	"github.com/smallbiznis/referralhub/internal/migration"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Epoch is the fixed start time handed to fake clocks.
var Epoch = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// NewDB opens a private in-memory SQLite database with every domain table
// migrated. A single connection keeps the shared-cache database alive and
// serializes transactions.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(migration.Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func PartnerContext(id string) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{ID: id, Role: actorcontext.RolePartner})
}

func StaffContext(id string) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{ID: id, Role: actorcontext.RoleStaff})
}
