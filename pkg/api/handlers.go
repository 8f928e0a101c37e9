package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/leadpipe/pkg/delivery"
	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

// CreateRunRequest is the body of POST /runs.
type CreateRunRequest struct {
	Criteria       model.Criteria `json:"criteria" binding:"required"`
	TargetQuantity int            `json:"target_quantity" binding:"required"`
	ContactsMin    int            `json:"contacts_min" binding:"required"`
	ContactsMax    int            `json:"contacts_max" binding:"required"`
}

// CreateRunResponse is returned by POST /runs.
type CreateRunResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) createRun(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Criteria.NotificationEmail == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "criteria.notification_email is required"})
		return
	}

	id, err := s.store.CreateRun(c.Request.Context(), req.Criteria, req.TargetQuantity, req.ContactsMin, req.ContactsMax)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, CreateRunResponse{RunID: id})
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondRunLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// DecisionRequest is the body of POST /runs/:id/decision, for a run parked
// in needs_user_decision. Decision is "accept_partial" (complete the run with
// whatever companies/contacts it already has and trigger delivery), or
// "expand" / "loosen_pms" (append a marker recording the requested
// target_quantity/contacts_min to the notes and leave the run parked;
// POST /runs/:id/resume reactivates it).
type DecisionRequest struct {
	Decision       string `json:"decision" binding:"required"`
	TargetQuantity int    `json:"target_quantity"`
	ContactsMin    int    `json:"contacts_min"`
}

func (s *Server) decideRun(c *gin.Context) {
	runID := c.Param("id")

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		s.respondRunLookupError(c, err)
		return
	}
	if run.Status != model.StatusNeedsUserDecision {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("run %s is not awaiting a decision (status=%s)", runID, run.Status)})
		return
	}

	switch req.Decision {
	case "accept_partial":
		if err := s.store.SetStage(c.Request.Context(), runID, model.StageDone); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := s.store.SetStatus(c.Request.Context(), runID, model.StatusCompleted, "user accepted partial results"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		delivery.Deliver(c.Request.Context(), s.store, s.notify, run)
		c.JSON(http.StatusOK, gin.H{"status": string(model.StatusCompleted)})
	case "expand", "loosen_pms":
		marker := fmt.Sprintf("user requested %s: target_quantity=%d contacts_min=%d (awaiting external criteria edit)",
			req.Decision, req.TargetQuantity, req.ContactsMin)
		if err := s.store.RecordDecisionMarker(c.Request.Context(), runID, marker); err != nil {
			if errors.Is(err, storage.ErrInvalidTransition) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": string(model.StatusNeedsUserDecision)})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown decision %q: expected accept_partial, expand, or loosen_pms", req.Decision)})
	}
}

// ResumeRunRequest is the body of POST /runs/:id/resume, the distinct,
// external act that follows an "expand"/"loosen_pms" decision once the
// operator has actually widened the run's criteria out of band.
type ResumeRunRequest struct {
	TargetQuantity int `json:"target_quantity"`
	ContactsMin    int `json:"contacts_min"`
}

func (s *Server) resumeRun(c *gin.Context) {
	runID := c.Param("id")

	// Body is optional: resuming with no new targets just flips status back
	// to active, e.g. after a criteria edit that needed no quantity change.
	var req ResumeRunRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.store.ResumeRun(c.Request.Context(), runID, req.TargetQuantity, req.ContactsMin); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.respondRunLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(model.StatusActive)})
}

func (s *Server) exportCompanies(c *gin.Context) {
	runID := c.Param("id")
	run, err := s.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		s.respondRunLookupError(c, err)
		return
	}

	companies, err := s.store.ListCompanyCandidates(c.Request.Context(), runID, model.ReadyStatuses...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	researchRows, err := s.store.ListCompanyResearch(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	researchByCompany := make(map[string]*model.CompanyResearch, len(researchRows))
	for _, r := range researchRows {
		researchByCompany[r.CompanyID] = r
	}

	csvBytes, err := delivery.BuildCompanyCSV(companies, researchByCompany)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-companies.csv"`, run.ID))
	c.Data(http.StatusOK, "text/csv", csvBytes)
}

func (s *Server) exportContacts(c *gin.Context) {
	runID := c.Param("id")
	run, err := s.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		s.respondRunLookupError(c, err)
		return
	}

	companies, err := s.store.ListCompanyCandidates(c.Request.Context(), runID, model.ReadyStatuses...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	contacts, err := s.store.ListContactCandidatesForRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	companyByID := make(map[string]*model.CompanyCandidate, len(companies))
	for _, co := range companies {
		companyByID[co.ID] = co
	}

	csvBytes, err := delivery.BuildContactCSV(contacts, companyByID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-contacts.csv"`, run.ID))
	c.Data(http.StatusOK, "text/csv", csvBytes)
}

func (s *Server) respondRunLookupError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
