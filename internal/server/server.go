package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"invalid status: unknown stage"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Caseline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	router.Handle("/metrics", metricsHandler())

	hcfg := huma.DefaultConfig("Caseline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerEnquiries(group, cfg.Engine)
	registerCases(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerActivity(group, cfg.Engine)
	registerRfqs(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{
			"field":  verr.Field,
			"reason": verr.Reason,
		})
	}
	var pf *engine.PartialPipelineFailure
	if errors.As(err, &pf) {
		// The first write landed; the created id lets the caller reconcile.
		return newAPIError(http.StatusBadGateway, "partial_failure", err.Error(), map[string]any{
			"step":       pf.Step,
			"created_id": pf.CreatedID,
		})
	}
	var se *engine.StoreUnavailableError
	if errors.As(err, &se) {
		return newAPIError(http.StatusServiceUnavailable, "store_unavailable", err.Error(), map[string]any{
			"op": se.Op,
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "partial_failure"
	case http.StatusServiceUnavailable:
		return "store_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerEnquiries(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-enquiry",
		Method:        http.MethodPost,
		Path:          "/enquiries",
		Summary:       "Create enquiry",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body CreateEnquiryRequest `json:"body"`
	}) (*struct {
		Body domain.Enquiry `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		enq, err := e.CreateEnquiry(ctx, engine.EnquiryInput{
			ClientName:  input.Body.ClientName,
			ClientEmail: input.Body.ClientEmail,
			ClientPhone: input.Body.ClientPhone,
			Budget:      input.Body.Budget,
			Timeline:    input.Body.Timeline,
			Style:       input.Body.Style,
		})
		countOp("create_enquiry", err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Enquiry `json:"body"`
		}{Body: enq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-enquiries",
		Method:      http.MethodGet,
		Path:        "/enquiries",
		Summary:     "List enquiries",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEnquiries `json:"body"`
	}, error) {
		items, err := e.Repo.ListEnquiries(ctx, input.Status, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Enquiry{}
		}
		return &struct {
			Body paginatedEnquiries `json:"body"`
		}{Body: paginatedEnquiries{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-enquiry",
		Method:      http.MethodGet,
		Path:        "/enquiries/{id}",
		Summary:     "Get enquiry",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Enquiry `json:"body"`
	}, error) {
		enq, err := e.Repo.GetEnquiry(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Enquiry `json:"body"`
		}{Body: enq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-enquiry",
		Method:      http.MethodPost,
		Path:        "/enquiries/{id}/view",
		Summary:     "Mark enquiry viewed by the caller",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Enquiry `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MarkViewed(ctx, input.ID, actor); err != nil {
			return nil, handleError(err)
		}
		enq, err := e.Repo.GetEnquiry(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Enquiry `json:"body"`
		}{Body: enq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "convert-enquiry",
		Method:        http.MethodPost,
		Path:          "/enquiries/{id}/convert",
		Summary:       "Convert enquiry to a lead case",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body *ConvertEnquiryRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.Case `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var body ConvertEnquiryRequest
		if input.Body != nil {
			body = *input.Body
		}
		c, err := e.ConvertEnquiry(ctx, input.ID, engine.LeadFields{
			AssignedSales: body.AssignedSales,
			TotalBudget:   body.TotalBudget,
		}, actor)
		countOp("convert_enquiry", err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Case `json:"body"`
		}{Body: c}, nil
	})
}

func registerCases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Create case",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body CreateCaseRequest `json:"body"`
	}) (*struct {
		Body domain.Case `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCase(ctx, engine.CaseInput{
			ClientName:    input.Body.ClientName,
			ClientEmail:   input.Body.ClientEmail,
			ClientPhone:   input.Body.ClientPhone,
			TotalBudget:   input.Body.TotalBudget,
			AssignedSales: input.Body.AssignedSales,
		}, actor)
		countOp("create_case", err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Case `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases",
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status"`
		IsProject string `query:"is_project" enum:"true,false,"`
		Sales     string `query:"sales"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedCases `json:"body"`
	}, error) {
		filters := repo.CaseFilters{Status: input.Status, Sales: input.Sales, Limit: input.Limit}
		switch input.IsProject {
		case "true":
			v := true
			filters.IsProject = &v
		case "false":
			v := false
			filters.IsProject = &v
		}
		items, err := e.Repo.ListCases(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Case{}
		}
		return &struct {
			Body paginatedCases `json:"body"`
		}{Body: paginatedCases{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pipeline-summary",
		Method:      http.MethodGet,
		Path:        "/cases/summary",
		Summary:     "Case counts per pipeline stage",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body pipelineSummary `json:"body"`
	}, error) {
		counts, err := e.Repo.CountCasesByStage(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body pipelineSummary `json:"body"`
		}{Body: pipelineSummary{Counts: counts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{id}",
		Summary:     "Get case",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Case `json:"body"`
	}, error) {
		c, err := e.GetCase(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Case `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-case-status",
		Method:      http.MethodPatch,
		Path:        "/cases/{id}/status",
		Summary:     "Set case status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Case `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateStatus(ctx, input.ID, input.Body.Status, actor)
		countOp("update_status", err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Case `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "flip-case-to-project",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/flip",
		Summary:     "Flip case to project (one-way)",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Case `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.FlipToProject(ctx, input.ID, actor)
		countOp("flip_to_project", err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Case `json:"body"`
		}{Body: c}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "assign-task",
		Method:        http.MethodPost,
		Path:          "/cases/{id}/tasks",
		Summary:       "Assign task on a case",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body AssignTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AssignTask(ctx, engine.TaskInput{
			CaseID:     input.ID,
			Title:      input.Body.Title,
			Type:       input.Body.Type,
			AssignedTo: input.Body.AssignedTo,
			Priority:   input.Body.Priority,
			Deadline:   input.Body.Deadline,
			Notes:      input.Body.Notes,
		}, actor)
		countOp("assign_task", err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-case-tasks",
		Method:      http.MethodGet,
		Path:        "/cases/{id}/tasks",
		Summary:     "List tasks for a case",
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{CaseID: input.ID, Status: input.Status, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Task{}
		}
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: paginatedTasks{Items: items}}, nil
	})
}

func registerActivity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-note",
		Method:        http.MethodPost,
		Path:          "/cases/{id}/notes",
		Summary:       "Add note or file record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body AddNoteRequest `json:"body"`
	}) (*struct {
		Body noteResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		recID, err := e.LogNote(ctx, input.ID, input.Body.Text, input.Body.Attachments, actor)
		countOp("log_note", err)
		if err != nil {
			return nil, handleError(err)
		}
		activityTotal.Inc()
		return &struct {
			Body noteResponse `json:"body"`
		}{Body: noteResponse{RecordID: recID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-case-activity",
		Method:      http.MethodGet,
		Path:        "/cases/{id}/activity",
		Summary:     "List a case's activity ledger",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		Limit    int    `query:"limit" default:"100"`
		AfterSeq int64  `query:"after_seq"`
		Desc     bool   `query:"desc"`
	}) (*struct {
		Body paginatedActivity `json:"body"`
	}, error) {
		if _, err := e.GetCase(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Ledger.List(ctx, input.ID, input.Limit, input.AfterSeq, input.Desc)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ActivityRecord{}
		}
		return &struct {
			Body paginatedActivity `json:"body"`
		}{Body: paginatedActivity{Items: items}}, nil
	})
}

func registerRfqs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-rfq",
		Method:        http.MethodPost,
		Path:          "/cases/{id}/rfqs",
		Summary:       "Open a request for quotation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body OpenRfqRequest `json:"body"`
	}) (*struct {
		Body domain.Rfq `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rfq, err := e.OpenRfq(ctx, engine.RfqInput{
			CaseID:          input.ID,
			Items:           input.Body.Items,
			VendorIDs:       input.Body.VendorIDs,
			BiddingDeadline: input.Body.BiddingDeadline,
		}, actor)
		countOp("open_rfq", err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Rfq `json:"body"`
		}{Body: rfq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-case-rfqs",
		Method:      http.MethodGet,
		Path:        "/cases/{id}/rfqs",
		Summary:     "List RFQs for a case",
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedRfqs `json:"body"`
	}, error) {
		items, err := e.Repo.ListRfqs(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Rfq{}
		}
		return &struct {
			Body paginatedRfqs `json:"body"`
		}{Body: paginatedRfqs{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-rfq",
		Method:      http.MethodGet,
		Path:        "/rfqs/{id}",
		Summary:     "Get RFQ with invites",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body rfqDetail `json:"body"`
	}, error) {
		rfq, err := e.Repo.GetRfq(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		invites, err := e.Repo.ListRfqInvites(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if invites == nil {
			invites = []domain.RfqInvite{}
		}
		return &struct {
			Body rfqDetail `json:"body"`
		}{Body: rfqDetail{Rfq: rfq, Invites: invites}}, nil
	})
}
