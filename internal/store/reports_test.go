package store

import (
	"context"
	"testing"
	"time"

	"github.com/campusrent/campusrent/internal/db"
	"github.com/campusrent/campusrent/internal/model"
)

func TestReportLifecycle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	reporter := mustUser(t, database, "reporter", model.RoleUser)
	owner := mustUser(t, database, "owner", model.RoleUser)
	admin := mustUser(t, database, "admin", model.RoleAdmin)
	item := mustItem(t, database, owner.ID, 10)

	rep, err := CreateReport(ctx, database, NewReport{
		ReporterID: reporter.ID, ReportedItemID: &item.ID, Reason: "broken",
	})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if rep.Status != model.ReportPending || rep.ReportedUserID != nil {
		t.Errorf("unexpected report: %+v", rep)
	}

	ok, err := TransitionReport(ctx, database, rep.ID, model.ReportSources(model.ReportReviewing),
		model.ReportReviewing, "", admin.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("to reviewing: ok=%v err=%v", ok, err)
	}

	ok, err = TransitionReport(ctx, database, rep.ID, model.ReportSources(model.ReportResolved),
		model.ReportResolved, "item removed", admin.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("to resolved: ok=%v err=%v", ok, err)
	}

	got, _ := GetReport(ctx, database, rep.ID)
	if got.Status != model.ReportResolved || got.AdminNotes != "item removed" {
		t.Errorf("unexpected report: %+v", got)
	}
	if got.ResolvedBy == nil || *got.ResolvedBy != admin.ID || got.ResolvedAt == nil {
		t.Errorf("resolution not recorded: %+v", got)
	}

	if ok, _ := TransitionReport(ctx, database, rep.ID, model.ReportSources(model.ReportDismissed),
		model.ReportDismissed, "", admin.ID, time.Now()); ok {
		t.Error("closed report must not move again")
	}

	pending, err := ListReports(ctx, database, model.ReportPending, 0, 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending reports, got %d", len(pending))
	}
	all, _ := ListReports(ctx, database, "", 0, 0)
	if len(all) != 1 {
		t.Errorf("expected 1 report, got %d", len(all))
	}
}

func TestReportNeedsExactlyOneTarget(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	reporter := mustUser(t, database, "reporter", model.RoleUser)
	owner := mustUser(t, database, "owner", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)

	if _, err := CreateReport(ctx, database, NewReport{ReporterID: reporter.ID, Reason: "x"}); err == nil {
		t.Error("expected error for report without target")
	}
	if _, err := CreateReport(ctx, database, NewReport{
		ReporterID: reporter.ID, ReportedItemID: &item.ID, ReportedUserID: &owner.ID, Reason: "x",
	}); err == nil {
		t.Error("expected error for report with two targets")
	}
}

func TestGetStats(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner := mustUser(t, database, "owner", model.RoleUser)
	borrower := mustUser(t, database, "borrower", model.RoleUser)
	item := mustItem(t, database, owner.ID, 10)
	mustRequest(t, database, item.ID, borrower.ID, 1, 2)
	CreateReport(ctx, database, NewReport{ReporterID: borrower.ID, ReportedUserID: &owner.ID, Reason: "rude"})

	s, err := GetStats(ctx, database)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if s.Users != 2 || s.Items != 1 || s.ActiveItems != 1 || s.OpenRequests != 1 || s.PendingReports != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}
