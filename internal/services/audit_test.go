package services

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/models"
	"github.com/google/uuid"
)

type captureUploader struct {
	mu       sync.Mutex
	objects  []string
	payloads []string
}

func (u *captureUploader) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects = append(u.objects, objectName)
	u.payloads = append(u.payloads, string(data))
	return nil
}

func (u *captureUploader) uploadCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.objects)
}

func TestAuditLogAsyncPersistsRows(t *testing.T) {
	_, db := setupCoordinator(t)
	svc := NewAuditService(db, nil)

	userID := uuid.New()
	familyID := uuid.New()
	svc.LogAsync(AuditEntry{
		UserID:    &userID,
		Action:    "family.join",
		FamilyID:  &familyID,
		Details:   map[string]interface{}{"auto_accepted": true},
		IPAddress: "10.0.0.1",
	})

	deadline := time.Now().Add(2 * time.Second)
	var row models.AuditLog
	for {
		err := db.First(&row, "action = ?", "family.join").Error
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit row never appeared: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if row.UserID == nil || *row.UserID != userID {
		t.Fatalf("expected audit row attributed to the user, got %v", row.UserID)
	}
	if row.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected ip %q", row.IPAddress)
	}
	if row.Details["auto_accepted"] != true {
		t.Fatalf("expected details preserved, got %v", row.Details)
	}
}

func TestAuditExportAdvancesCursor(t *testing.T) {
	_, db := setupCoordinator(t)
	uploader := &captureUploader{}
	svc := NewAuditService(db, uploader)

	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Minute)
	for i, action := range []string{"family.create", "family.invite"} {
		if err := db.Create(&models.AuditLog{
			UserID:    &userID,
			Action:    action,
			IPAddress: "127.0.0.1",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}).Error; err != nil {
			t.Fatalf("failed seeding audit row: %v", err)
		}
	}

	svc.export()

	if got := uploader.uploadCount(); got != 1 {
		t.Fatalf("expected one upload, got %d", got)
	}
	if !strings.HasPrefix(uploader.objects[0], "audit-logs/") || !strings.HasSuffix(uploader.objects[0], ".ndjson") {
		t.Fatalf("unexpected object name %q", uploader.objects[0])
	}
	payload := strings.TrimSpace(uploader.payloads[0])
	if lines := strings.Split(payload, "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d: %q", len(lines), payload)
	}
	if !strings.Contains(payload, "family.create") || !strings.Contains(payload, "family.invite") {
		t.Fatalf("expected both actions in the export, got %q", payload)
	}

	var cursor models.AuditExportCursor
	if err := db.First(&cursor).Error; err != nil {
		t.Fatalf("failed loading cursor: %v", err)
	}
	if cursor.ExportedCount != 2 {
		t.Fatalf("expected exported count 2, got %d", cursor.ExportedCount)
	}
	if cursor.LastExportAt.Before(base) {
		t.Fatalf("expected cursor advanced past %v, got %v", base, cursor.LastExportAt)
	}

	// Nothing new since the cursor: no second upload.
	svc.export()
	if got := uploader.uploadCount(); got != 1 {
		t.Fatalf("expected no re-export of already shipped rows, got %d uploads", got)
	}
}
