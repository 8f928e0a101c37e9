package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

// Deliver projects a completed run's companies and contacts into CSV
// exports and emails them to criteria.notification_email. It is always
// best-effort: any failure is appended to the run's notes rather than
// returned, so it never reverses the run's completion.
func Deliver(ctx context.Context, store *storage.Store, cfg config.NotificationConfig, run *model.Run) {
	log := slog.With("run_id", run.ID)

	if err := deliver(ctx, store, cfg, run); err != nil {
		log.Error("delivery failed", "error", err)
		note := fmt.Sprintf("delivery: failed to send notification: %v", err)
		if noteErr := store.AppendNotes(ctx, run.ID, note); noteErr != nil {
			log.Error("failed to record delivery failure in notes", "error", noteErr)
		}
		return
	}
	log.Info("delivery sent")
}

func deliver(ctx context.Context, store *storage.Store, cfg config.NotificationConfig, run *model.Run) error {
	companies, err := store.ListCompanyCandidates(ctx, run.ID, model.ReadyStatuses...)
	if err != nil {
		return fmt.Errorf("listing companies for export: %w", err)
	}
	researchRows, err := store.ListCompanyResearch(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("listing research for export: %w", err)
	}
	contacts, err := store.ListContactCandidatesForRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("listing contacts for export: %w", err)
	}

	researchByCompany := make(map[string]*model.CompanyResearch, len(researchRows))
	for _, r := range researchRows {
		researchByCompany[r.CompanyID] = r
	}
	companyByID := make(map[string]*model.CompanyCandidate, len(companies))
	for _, c := range companies {
		companyByID[c.ID] = c
	}

	companyCSV, err := BuildCompanyCSV(companies, researchByCompany)
	if err != nil {
		return fmt.Errorf("building company export: %w", err)
	}
	contactCSV, err := BuildContactCSV(contacts, companyByID)
	if err != nil {
		return fmt.Errorf("building contact export: %w", err)
	}

	recipient := run.Criteria.NotificationEmail
	if recipient == "" {
		return fmt.Errorf("run has no notification_email")
	}

	subject := fmt.Sprintf("Lead list ready: run %s (%d companies, %d contacts)", run.ID, len(companies), len(contacts))
	body := fmt.Sprintf(
		"Run %s completed with %d companies and %d contacts.\n\nAttached:\n  companies.csv\n  contacts.csv\n",
		run.ID, len(companies), len(contacts))

	return SendNotification(cfg, recipient, subject, body, []Attachment{
		{Filename: "companies.csv", Content: companyCSV},
		{Filename: "contacts.csv", Content: contactCSV},
	})
}
