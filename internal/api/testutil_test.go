package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"elecmate/internal/database"
	"elecmate/internal/notify"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// asUser fronts a handler with the context values the auth middleware would
// set for an authenticated request.
func asUser(userID uint, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("userRole", role)
	}
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewBuffer(raw)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

type capturedNotification struct {
	UserID uint
	notify.Notification
}

// fakeNotifier records every notification a workflow publishes.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []capturedNotification
}

func (f *fakeNotifier) Notify(_ context.Context, userID uint, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, capturedNotification{UserID: userID, Notification: n})
	return nil
}

func (f *fakeNotifier) all() []capturedNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedNotification(nil), f.sent...)
}

// fakeApplyLock is an in-memory stand-in for the redis single-flight guard.
type fakeApplyLock struct {
	mu   sync.Mutex
	held map[string]bool
	dels []string
}

func newFakeApplyLock() *fakeApplyLock {
	return &fakeApplyLock{held: map[string]bool{}}
}

func (f *fakeApplyLock) SetNX(ctx context.Context, key string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeApplyLock) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.held, key)
		f.dels = append(f.dels, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) database.User {
	t.Helper()
	user := database.User{Username: username, PasswordHash: "x", Role: role}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

var profileSeq atomic.Uint64

func seedProfile(t *testing.T, db *gorm.DB, userID uint) database.ElecIDProfile {
	t.Helper()
	profile := database.ElecIDProfile{
		UserID:     userID,
		Tier:       "verified",
		ElecIDCode: fmt.Sprintf("EM-TEST%06d", profileSeq.Add(1)),
		Bio:        "Commercial installs and EICRs.",
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

func seedEmployer(t *testing.T, db *gorm.DB, userID uint, name string) database.Employer {
	t.Helper()
	employer := database.Employer{UserID: userID, DisplayName: name, Location: "Leeds"}
	if err := db.Create(&employer).Error; err != nil {
		t.Fatalf("seed employer: %v", err)
	}
	return employer
}

func seedVacancy(t *testing.T, db *gorm.DB, employerID uint, mutate func(*database.Vacancy)) database.Vacancy {
	t.Helper()
	v := database.Vacancy{
		EmployerID:     employerID,
		Title:          "Approved Electrician",
		Description:    "Commercial fit-out work.",
		Location:       "Leeds",
		EmploymentType: "Full-time",
		Status:         database.VacancyStatusOpen,
	}
	if mutate != nil {
		mutate(&v)
	}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("seed vacancy: %v", err)
	}
	return v
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}
