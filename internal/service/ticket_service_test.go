package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/psds-microservice/support-ticket-service/internal/clock"
	"github.com/psds-microservice/support-ticket-service/internal/config"
	"github.com/psds-microservice/support-ticket-service/internal/database"
	"github.com/psds-microservice/support-ticket-service/internal/errs"
	"github.com/psds-microservice/support-ticket-service/internal/model"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*TicketService, *clock.FakeClock) {
	t.Helper()
	db, err := database.Open(config.DriverSQLite, filepath.Join(t.TempDir(), "tickets-test.db"), "warn")
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	clk := clock.Fake(baseTime)
	return NewTicketService(db, clk), clk
}

func mustCreate(t *testing.T, svc *TicketService, title, desc string, cat model.Category, pri model.Priority) *model.Ticket {
	t.Helper()
	tk := &model.Ticket{Title: title, Description: desc, Category: cat, Priority: pri}
	if err := svc.Create(context.Background(), tk); err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return tk
}

func TestCreateAssignsIDCreatedAtAndDefaultStatus(t *testing.T) {
	svc, _ := newTestService(t)
	tk := &model.Ticket{
		ID:          999,
		Title:       "Refund",
		Description: "Charged twice",
		Category:    model.CategoryBilling,
		Priority:    model.PriorityHigh,
		CreatedAt:   time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := svc.Create(context.Background(), tk); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tk.ID == 0 || tk.ID == 999 {
		t.Fatalf("expected server-assigned id, got %d", tk.ID)
	}
	if !tk.CreatedAt.Equal(baseTime) {
		t.Fatalf("CreatedAt = %s, want %s", tk.CreatedAt, baseTime)
	}
	if tk.Status != model.TicketStatusOpen {
		t.Fatalf("Status = %q, want open", tk.Status)
	}

	got, err := svc.GetByID(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Refund" || got.Status != model.TicketStatusOpen || !got.CreatedAt.Equal(baseTime) {
		t.Fatalf("unexpected stored ticket: %+v", got)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetByID(context.Background(), 42)
	if !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("GetByID err = %v, want ErrTicketNotFound", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	first := mustCreate(t, svc, "first", "d", model.CategoryGeneral, model.PriorityLow)
	clk.Advance(time.Minute)
	second := mustCreate(t, svc, "second", "d", model.CategoryGeneral, model.PriorityLow)
	clk.Advance(time.Hour)
	third := mustCreate(t, svc, "third", "d", model.CategoryGeneral, model.PriorityLow)

	items, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	want := []uint64{third.ID, second.ID, first.ID}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("items[%d].ID = %d, want %d", i, items[i].ID, id)
		}
	}
}

func TestListFilters(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "Invoice wrong", "Amount is off", model.CategoryBilling, model.PriorityMedium)
	clk.Advance(time.Second)
	mustCreate(t, svc, "Crash on start", "App crashes", model.CategoryTechnical, model.PriorityCritical)
	clk.Advance(time.Second)
	login := mustCreate(t, svc, "Help", "Cannot login", model.CategoryAccount, model.PriorityHigh)
	clk.Advance(time.Second)
	mustCreate(t, svc, "Refund please", "Refund for 50%_off deal", model.CategoryBilling, model.PriorityLow)

	if _, err := svc.Update(ctx, login.ID, map[string]interface{}{"status": string(model.TicketStatusResolved)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{name: "no filter", filter: ListFilter{}, want: []string{"Refund please", "Help", "Crash on start", "Invoice wrong"}},
		{name: "category", filter: ListFilter{Category: "billing"}, want: []string{"Refund please", "Invoice wrong"}},
		{name: "priority", filter: ListFilter{Priority: "critical"}, want: []string{"Crash on start"}},
		{name: "status", filter: ListFilter{Status: "resolved"}, want: []string{"Help"}},
		{name: "search description lower", filter: ListFilter{Search: "login"}, want: []string{"Help"}},
		{name: "search description upper", filter: ListFilter{Search: "LOGIN"}, want: []string{"Help"}},
		{name: "search title", filter: ListFilter{Search: "crash"}, want: []string{"Crash on start"}},
		{name: "search escapes wildcards", filter: ListFilter{Search: "50%_"}, want: []string{"Refund please"}},
		{name: "percent alone is literal", filter: ListFilter{Search: "%"}, want: []string{"Refund please"}},
		{name: "conjunctive", filter: ListFilter{Category: "billing", Priority: "low"}, want: []string{"Refund please"}},
		{name: "conjunctive no match", filter: ListFilter{Category: "billing", Search: "crash"}, want: nil},
		{name: "unknown enum value", filter: ListFilter{Category: "sales"}, want: nil},
		{name: "limit offset", filter: ListFilter{Limit: 2, Offset: 1}, want: []string{"Help", "Crash on start"}},
	}
	for _, tt := range tests {
		items, err := svc.List(ctx, tt.filter)
		if err != nil {
			t.Fatalf("%s: List: %v", tt.name, err)
		}
		if len(items) != len(tt.want) {
			t.Fatalf("%s: got %d items, want %d (%v)", tt.name, len(items), len(tt.want), titles(items))
		}
		for i, title := range tt.want {
			if items[i].Title != title {
				t.Fatalf("%s: items[%d] = %q, want %q", tt.name, i, items[i].Title, title)
			}
		}
	}
}

func TestListEmptyReturnsNonNilSlice(t *testing.T) {
	svc, _ := newTestService(t)
	items, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if items == nil {
		t.Fatal("expected empty non-nil slice")
	}
}

func TestListAfterPagesByID(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, mustCreate(t, svc, "t", "d", model.CategoryGeneral, model.PriorityLow).ID)
		clk.Advance(time.Second)
	}

	first, err := svc.ListAfter(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListAfter: %v", err)
	}
	if len(first) != 2 || first[0].ID != ids[0] || first[1].ID != ids[1] {
		t.Fatalf("first page = %+v", first)
	}

	// Новый тикет между страницами не сдвигает уже пройденные.
	late := mustCreate(t, svc, "late", "d", model.CategoryGeneral, model.PriorityLow)

	var seen []uint64
	last := first[1].ID
	for {
		page, err := svc.ListAfter(ctx, last, 2)
		if err != nil {
			t.Fatalf("ListAfter(%d): %v", last, err)
		}
		for _, tk := range page {
			seen = append(seen, tk.ID)
			last = tk.ID
		}
		if len(page) < 2 {
			break
		}
	}
	want := []uint64{ids[2], ids[3], ids[4], late.ID}
	if len(seen) != len(want) {
		t.Fatalf("rest = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("rest = %v, want %v", seen, want)
		}
	}
}

func TestUpdatePartialAndWhitelist(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	tk := mustCreate(t, svc, "Title", "Desc", model.CategoryTechnical, model.PriorityMedium)
	clk.Advance(24 * time.Hour)

	got, err := svc.Update(ctx, tk.ID, map[string]interface{}{
		"status":     string(model.TicketStatusResolved),
		"created_at": time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
		"id":         uint64(77),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID != tk.ID {
		t.Fatalf("id changed: %d -> %d", tk.ID, got.ID)
	}
	if got.Status != model.TicketStatusResolved {
		t.Fatalf("Status = %q, want resolved", got.Status)
	}
	if got.Title != "Title" || got.Description != "Desc" || got.Category != model.CategoryTechnical || got.Priority != model.PriorityMedium {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Fatalf("CreatedAt changed to %s", got.CreatedAt)
	}
}

func TestUpdateEmptyChangesReturnsTicket(t *testing.T) {
	svc, _ := newTestService(t)
	tk := mustCreate(t, svc, "Title", "Desc", model.CategoryGeneral, model.PriorityLow)
	got, err := svc.Update(context.Background(), tk.ID, map[string]interface{}{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID != tk.ID || got.Title != "Title" {
		t.Fatalf("unexpected ticket: %+v", got)
	}
}

func TestUpdateNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Update(context.Background(), 12345, map[string]interface{}{"title": "x"})
	if !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("Update err = %v, want ErrTicketNotFound", err)
	}
}

func TestPing(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestLikePattern(t *testing.T) {
	tests := map[string]string{
		"Login":   "%login%",
		"50%":     `%50\%%`,
		"a_b":     `%a\_b%`,
		`back\sl`: `%back\\sl%`,
	}
	for in, want := range tests {
		if got := likePattern(in); got != want {
			t.Fatalf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func titles(items []model.Ticket) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}
