package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clubline/internal/app"
	"clubline/internal/authz"
	"clubline/internal/domain"
	"clubline/internal/engine"
	"clubline/internal/repo"
	"clubline/pkg/logger"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   logger.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"member cannot close task"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Clubline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope everywhere.
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
	if cfg.Logger != nil {
		router.Use(requestLogger(cfg.Logger))
	}
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Clubline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerClubs(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerEquipment(group, cfg.Engine)
	registerPlans(group, cfg.Engine)
	registerApplications(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerSubTasks(group, cfg.Engine)
	registerPurchases(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrValidation) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrPrecondition) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func forbidden(action authz.Action) huma.StatusError {
	return newAPIError(http.StatusForbidden, "forbidden", fmt.Sprintf("action %s not allowed", action), map[string]any{"action": string(action)})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// actorFromContext loads the acting user. Unknown ids still act with the
// principal's own claims so that freshly minted tokens work before any row
// exists; the authorization engine sees membership facts either way.
func actorFromContext(ctx context.Context, e engine.Engine) (*domain.User, huma.StatusError) {
	p, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return nil, authErr
	}
	u, err := e.Repo.GetUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &domain.User{ID: p.UserID, Admin: p.Admin, Active: true}, nil
		}
		return nil, handleError(err)
	}
	if p.Admin {
		u.Admin = true
	}
	return &u, nil
}

func requireClubAction(ctx context.Context, e engine.Engine, clubID string, action authz.Action) (*domain.User, huma.StatusError) {
	actor, authErr := actorFromContext(ctx, e)
	if authErr != nil {
		return nil, authErr
	}
	facts, err := e.Repo.MembershipFacts(ctx, actor.ID, clubID)
	if err != nil {
		return nil, handleError(err)
	}
	if !authz.CanActOnClub(actor, facts, action) {
		return nil, forbidden(action)
	}
	return actor, nil
}

func requireTaskAction(ctx context.Context, e engine.Engine, t domain.Task, action authz.Action) (*domain.User, huma.StatusError) {
	actor, authErr := actorFromContext(ctx, e)
	if authErr != nil {
		return nil, authErr
	}
	tc, err := e.TaskAuthzContext(ctx, actor.ID, t)
	if err != nil {
		return nil, handleError(err)
	}
	if !authz.CanActOnTask(actor, tc, action) {
		return nil, forbidden(action)
	}
	return actor, nil
}

func requireSubTaskAction(ctx context.Context, e engine.Engine, st domain.SubTask, action authz.Action) (*domain.User, authz.TaskContext, huma.StatusError) {
	actor, authErr := actorFromContext(ctx, e)
	if authErr != nil {
		return nil, authz.TaskContext{}, authErr
	}
	tc, err := e.SubTaskAuthzContext(ctx, actor.ID, st)
	if err != nil {
		return nil, authz.TaskContext{}, handleError(err)
	}
	if !authz.CanActOnTask(actor, tc, action) {
		return nil, tc, forbidden(action)
	}
	return actor, tc, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, req)
			log.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Clubline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
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

func registerClubs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-club",
		Method:        http.MethodPost,
		Path:          "/clubs",
		Summary:       "Create club",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateClubRequest `json:"body"`
	}) (*struct {
		Body domain.Club `json:"body"`
	}, error) {
		if input.Body.Subdomain == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "subdomain is required", nil)
		}
		actor, authErr := actorFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if !actor.Admin {
			return nil, forbidden(authz.ActionManage)
		}
		id := stringOrEmpty(input.Body.ID)
		if id == "" {
			id = input.Body.Subdomain
		}
		name := input.Body.Name
		if name == "" {
			name = input.Body.Subdomain
		}
		c := domain.Club{
			ID:        id,
			Name:      name,
			Subdomain: input.Body.Subdomain,
			Active:    true,
			CreatedAt: e.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertClub(ctx, c); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Club `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clubs",
		Method:      http.MethodGet,
		Path:        "/clubs",
		Summary:     "List clubs",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Club `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListClubs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Club `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-club",
		Method:      http.MethodGet,
		Path:        "/clubs/{club_id}",
		Summary:     "Get club",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClubID string `path:"club_id"`
	}) (*struct {
		Body domain.Club `json:"body"`
	}, error) {
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetClub(ctx, input.ClubID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Club `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "club-status",
		Method:      http.MethodGet,
		Path:        "/clubs/{club_id}/status",
		Summary:     "Club status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClubID string `path:"club_id"`
	}) (*struct {
		Body ClubStatusResponse `json:"body"`
	}, error) {
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetClub(ctx, input.ClubID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountTasksByStatus(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ClubStatusResponse `json:"body"`
		}{Body: ClubStatusResponse{ClubID: c.ID, Active: c.Active, TaskCounts: counts}}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-member",
		Method:      http.MethodPut,
		Path:        "/clubs/{club_id}/members",
		Summary:     "Add or update a member",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClubID string              `path:"club_id"`
		Body   UpsertMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionManage); authErr != nil {
			return nil, authErr
		}
		if err := app.EnsureUser(ctx, e.Repo, input.Body.UserID); err != nil {
			return nil, handleError(err)
		}
		m := domain.Membership{
			UserID:      input.Body.UserID,
			ClubID:      input.ClubID,
			IsManager:   input.Body.IsManager,
			IsInspector: input.Body.IsInspector,
			CreatedAt:   e.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.UpsertMembership(ctx, m); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/clubs/{club_id}/members",
		Summary:     "List members",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ClubID string `path:"club_id"`
	}) (*struct {
		Body []domain.Membership `json:"body"`
	}, error) {
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListMemberships(ctx, input.ClubID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Membership `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/clubs/{club_id}/members/{user_id}",
		Summary:     "Remove a member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClubID string `path:"club_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionManage); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteMembership(ctx, input.UserID, input.ClubID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEquipment(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-equipment",
		Method:        http.MethodPost,
		Path:          "/clubs/{club_id}/equipment",
		Summary:       "Register equipment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ClubID string                 `path:"club_id"`
		Body   CreateEquipmentRequest `json:"body"`
	}) (*struct {
		Body domain.Equipment `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionManage); authErr != nil {
			return nil, authErr
		}
		ownership := domain.Ownership(input.Body.Ownership)
		if ownership == "" {
			ownership = domain.OwnershipClub
		}
		eq := domain.Equipment{
			ID:        stringOrEmpty(input.Body.ID),
			ClubID:    input.ClubID,
			Name:      input.Body.Name,
			Type:      domain.EquipmentType(input.Body.Type),
			Ownership: ownership,
			OwnerIDs:  input.Body.OwnerIDs,
			CreatedAt: e.Now().UTC().Format(time.RFC3339),
		}
		if eq.ID == "" {
			eq.ID = uuid.New().String()
		}
		if err := e.Repo.InsertEquipment(ctx, eq); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Equipment `json:"body"`
		}{Body: eq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-equipment",
		Method:      http.MethodGet,
		Path:        "/clubs/{club_id}/equipment",
		Summary:     "List equipment",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ClubID string `path:"club_id"`
	}) (*struct {
		Body []domain.Equipment `json:"body"`
	}, error) {
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListEquipment(ctx, input.ClubID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Equipment `json:"body"`
		}{Body: items}, nil
	})
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-plan",
		Method:        http.MethodPost,
		Path:          "/clubs/{club_id}/plans",
		Summary:       "Create maintenance plan",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ClubID string            `path:"club_id"`
		Body   CreatePlanRequest `json:"body"`
	}) (*struct {
		Body domain.Plan `json:"body"`
	}, error) {
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionManage); authErr != nil {
			return nil, authErr
		}
		opts := engine.PlanCreateOptions{
			ID:            stringOrEmpty(input.Body.ID),
			Name:          input.Body.Name,
			EquipmentType: domain.EquipmentType(input.Body.EquipmentType),
		}
		for _, tt := range input.Body.Tasks {
			task := engine.PlanTaskTemplate{
				Title:         tt.Title,
				Description:   stringOrEmpty(tt.Description),
				Documentation: stringOrEmpty(tt.Documentation),
			}
			for _, stt := range tt.SubTasks {
				task.SubTasks = append(task.SubTasks, engine.PlanSubTaskTemplate{
					Title:              stt.Title,
					Description:        stringOrEmpty(stt.Description),
					Difficulty:         intOrZero(stt.Difficulty),
					RequiresInspection: stt.RequiresInspection,
					Documentation:      stringOrEmpty(stt.Documentation),
				})
			}
			opts.Tasks = append(opts.Tasks, task)
		}
		p, err := e.CreatePlan(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Plan `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/plans",
		Summary:     "List maintenance plans",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Plan `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListPlans(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Plan `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/plans/{plan_id}",
		Summary:     "Get plan with its templates",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PlanID string `path:"plan_id"`
	}) (*struct {
		Body struct {
			Plan     domain.Plan          `json:"plan"`
			Tasks    []domain.PlanTask    `json:"tasks"`
			SubTasks []domain.PlanSubTask `json:"subtasks"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetPlan(ctx, input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.ListPlanTasks(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		var subtasks []domain.PlanSubTask
		for _, pt := range tasks {
			sts, err := e.Repo.ListPlanSubTasks(ctx, pt.ID)
			if err != nil {
				return nil, handleError(err)
			}
			subtasks = append(subtasks, sts...)
		}
		out := &struct {
			Body struct {
				Plan     domain.Plan          `json:"plan"`
				Tasks    []domain.PlanTask    `json:"tasks"`
				SubTasks []domain.PlanSubTask `json:"subtasks"`
			} `json:"body"`
		}{}
		out.Body.Plan = p
		out.Body.Tasks = tasks
		out.Body.SubTasks = subtasks
		return out, nil
	})
}

func registerApplications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "apply-plan",
		Method:        http.MethodPost,
		Path:          "/applications",
		Summary:       "Apply a plan to an equipment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ApplyPlanRequest `json:"body"`
	}) (*struct {
		Body engine.ApplyResult `json:"body"`
	}, error) {
		if input.Body.PlanID == "" || input.Body.EquipmentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "plan_id and equipment_id are required", nil)
		}
		eq, err := e.Repo.GetEquipment(ctx, input.Body.EquipmentID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, authErr := requireClubAction(ctx, e, eq.ClubID, authz.ActionManage)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ApplyPlan(ctx, engine.ApplyOptions{
			PlanID:      input.Body.PlanID,
			EquipmentID: input.Body.EquipmentID,
			DueAt:       stringOrEmpty(input.Body.DueAt),
			ActorID:     actor.ID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ApplyResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/equipment/{equipment_id}/applications",
		Summary:     "List plan applications for an equipment",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EquipmentID string `path:"equipment_id"`
		From        string `query:"from" required:"false" format:"date-time"`
		To          string `query:"to" required:"false" format:"date-time"`
	}) (*struct {
		Body []domain.PlanApplication `json:"body"`
	}, error) {
		eq, err := e.Repo.GetEquipment(ctx, input.EquipmentID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, authErr := requireClubAction(ctx, e, eq.ClubID, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		var items []domain.PlanApplication
		if input.From != "" && input.To != "" {
			items, err = e.Repo.ListApplicationsInRange(ctx, eq.ID, input.From, input.To)
		} else {
			items, err = e.Repo.ListApplications(ctx, eq.ID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PlanApplication `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-application",
		Method:      http.MethodPost,
		Path:        "/applications/{application_id}/cancel",
		Summary:     "Cancel a plan application and its open tasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ApplicationID string        `path:"application_id"`
		Body          CancelRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.PlanApplication `json:"body"`
	}, error) {
		a, err := e.Repo.GetApplication(ctx, input.ApplicationID)
		if err != nil {
			return nil, handleError(err)
		}
		eq, err := e.Repo.GetEquipment(ctx, a.EquipmentID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, authErr := requireClubAction(ctx, e, eq.ClubID, authz.ActionManage)
		if authErr != nil {
			return nil, authErr
		}
		a, err = e.CancelPlanApplication(ctx, a.ID, actor.ID, stringOrEmpty(input.Body.Reason))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PlanApplication `json:"body"`
		}{Body: a}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/clubs/{club_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ClubID string            `path:"club_id"`
		Body   CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionManage)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:            stringOrEmpty(input.Body.ID),
			ClubID:        input.ClubID,
			EquipmentID:   input.Body.EquipmentID,
			Title:         input.Body.Title,
			Description:   stringOrEmpty(input.Body.Description),
			Documentation: stringOrEmpty(input.Body.Documentation),
			DueAt:         stringOrEmpty(input.Body.DueAt),
			ActorID:       actor.ID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/clubs/{club_id}/tasks",
		Summary:     "List tasks the actor may view",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ClubID      string `path:"club_id"`
		EquipmentID string `query:"equipment_id" required:"false"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		actor, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionView)
		if authErr != nil {
			return nil, authErr
		}
		var items []domain.Task
		var err error
		if input.EquipmentID != "" {
			items, err = e.Repo.ListTasksByEquipment(ctx, input.EquipmentID)
		} else {
			items, err = e.Repo.ListTasksByClub(ctx, input.ClubID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		// Visibility is per task: private equipment hides its tasks from
		// members who are neither manager, owner, nor relevant inspector.
		visible := make([]domain.Task, 0, len(items))
		for _, t := range items {
			tc, err := e.TaskAuthzContext(ctx, actor.ID, t)
			if err != nil {
				return nil, handleError(err)
			}
			if authz.CanActOnTask(actor, tc, authz.ActionView) {
				visible = append(visible, t)
			}
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: visible}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task detail",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskDetailResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, authErr := requireTaskAction(ctx, e, t, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		subtasks, err := e.Repo.ListSubTasks(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		log, err := e.Repo.ListActivities(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		progress, err := e.TaskProgress(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskDetailResponse `json:"body"`
		}{Body: TaskDetailResponse{
			Task:     t,
			SubTasks: nonNilSubTasks(subtasks),
			Log:      log,
			Progress: progress,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/close",
		Summary:     "Close task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, authErr := requireTaskAction(ctx, e, t, authz.ActionClose)
		if authErr != nil {
			return nil, authErr
		}
		t, err = e.CloseTask(ctx, t.ID, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/cancel",
		Summary:     "Cancel task and its open subtasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string        `path:"task_id"`
		Body   CancelRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, authErr := requireTaskAction(ctx, e, t, authz.ActionCancel)
		if authErr != nil {
			return nil, authErr
		}
		t, err = e.CancelTask(ctx, t.ID, actor.ID, stringOrEmpty(input.Body.Reason))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "comment-task",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/comments",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   CommentRequest `json:"body"`
	}) (*struct {
		Body []domain.Activity `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, authErr := requireTaskAction(ctx, e, t, authz.ActionComment)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Comment(ctx, t.ID, stringOrEmpty(input.Body.SubTaskID), actor.ID, input.Body.Message); err != nil {
			return nil, handleError(err)
		}
		log, err := e.Repo.ListActivities(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Activity `json:"body"`
		}{Body: log}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-log",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/log",
		Summary:     "Task activity log",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []domain.Activity `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, authErr := requireTaskAction(ctx, e, t, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		log, err := e.Repo.ListActivities(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Activity `json:"body"`
		}{Body: log}, nil
	})
}

func registerSubTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/subtasks",
		Summary:       "Create subtask",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID string               `path:"task_id"`
		Body   CreateSubTaskRequest `json:"body"`
	}) (*struct {
		Body domain.SubTask `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, authErr := requireTaskAction(ctx, e, t, authz.ActionCreateSubTask)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.CreateSubTask(ctx, engine.SubTaskCreateOptions{
			ID:                 stringOrEmpty(input.Body.ID),
			TaskID:             t.ID,
			Title:              input.Body.Title,
			Description:        stringOrEmpty(input.Body.Description),
			Difficulty:         intOrZero(input.Body.Difficulty),
			RequiresInspection: input.Body.RequiresInspection,
			Documentation:      stringOrEmpty(input.Body.Documentation),
			ActorID:            actor.ID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SubTask `json:"body"`
		}{Body: st}, nil
	})

	type subTaskPath struct {
		SubTaskID string `path:"subtask_id"`
	}

	subTaskOp := func(id, pathSuffix, summary string, action authz.Action, run func(ctx context.Context, st domain.SubTask, actor *domain.User, tc authz.TaskContext) (domain.SubTask, error)) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      http.MethodPost,
			Path:        "/subtasks/{subtask_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *subTaskPath) (*struct {
			Body domain.SubTask `json:"body"`
		}, error) {
			st, err := e.Repo.GetSubTask(ctx, input.SubTaskID)
			if err != nil {
				return nil, handleError(err)
			}
			actor, tc, authErr := requireSubTaskAction(ctx, e, st, action)
			if authErr != nil {
				return nil, authErr
			}
			st, err = run(ctx, st, actor, tc)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.SubTask `json:"body"`
			}{Body: st}, nil
		})
	}

	// done takes an optional body, so it is registered by hand.
	huma.Register(api, huma.Operation{
		OperationID: "mark-subtask-done",
		Method:      http.MethodPost,
		Path:        "/subtasks/{subtask_id}/done",
		Summary:     "Mark subtask done",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SubTaskID string      `path:"subtask_id"`
		Body      DoneRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.SubTask `json:"body"`
	}, error) {
		st, err := e.Repo.GetSubTask(ctx, input.SubTaskID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, tc, authErr := requireSubTaskAction(ctx, e, st, authz.ActionDo)
		if authErr != nil {
			return nil, authErr
		}
		st, err = e.MarkSubTaskDone(ctx, st.ID, actor.ID, stringOrEmpty(input.Body.CompletedBy), tc.Facts.IsInspector)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SubTask `json:"body"`
		}{Body: st}, nil
	})

	subTaskOp("undo-subtask-done", "undone", "Reopen a completed subtask", authz.ActionDo,
		func(ctx context.Context, st domain.SubTask, actor *domain.User, _ authz.TaskContext) (domain.SubTask, error) {
			return e.UndoSubTaskDone(ctx, st.ID, actor.ID)
		})

	subTaskOp("inspect-approve-subtask", "approve", "Approve an inspection", authz.ActionInspect,
		func(ctx context.Context, st domain.SubTask, actor *domain.User, _ authz.TaskContext) (domain.SubTask, error) {
			return e.InspectApprove(ctx, st.ID, actor.ID)
		})

	huma.Register(api, huma.Operation{
		OperationID: "inspect-reject-subtask",
		Method:      http.MethodPost,
		Path:        "/subtasks/{subtask_id}/reject",
		Summary:     "Reject an inspection",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SubTaskID string        `path:"subtask_id"`
		Body      RejectRequest `json:"body"`
	}) (*struct {
		Body domain.SubTask `json:"body"`
	}, error) {
		if input.Body.Reason == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "reason is required", nil)
		}
		st, err := e.Repo.GetSubTask(ctx, input.SubTaskID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, _, authErr := requireSubTaskAction(ctx, e, st, authz.ActionReject)
		if authErr != nil {
			return nil, authErr
		}
		st, err = e.InspectReject(ctx, st.ID, actor.ID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SubTask `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-subtask",
		Method:      http.MethodPost,
		Path:        "/subtasks/{subtask_id}/cancel",
		Summary:     "Cancel subtask",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SubTaskID string        `path:"subtask_id"`
		Body      CancelRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.SubTask `json:"body"`
	}, error) {
		st, err := e.Repo.GetSubTask(ctx, input.SubTaskID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, _, authErr := requireSubTaskAction(ctx, e, st, authz.ActionCancel)
		if authErr != nil {
			return nil, authErr
		}
		st, err = e.CancelSubTask(ctx, st.ID, actor.ID, stringOrEmpty(input.Body.Reason))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SubTask `json:"body"`
		}{Body: st}, nil
	})
}

func registerPurchases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-purchase",
		Method:        http.MethodPost,
		Path:          "/clubs/{club_id}/purchases",
		Summary:       "Open a purchase request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ClubID string                `path:"club_id"`
		Body   CreatePurchaseRequest `json:"body"`
	}) (*struct {
		Body domain.Purchase `json:"body"`
	}, error) {
		actor, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionView)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreatePurchase(ctx, engine.PurchaseCreateOptions{
			ID:          stringOrEmpty(input.Body.ID),
			ClubID:      input.ClubID,
			EquipmentID: stringOrEmpty(input.Body.EquipmentID),
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			AmountCents: input.Body.AmountCents,
			ActorID:     actor.ID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Purchase `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-purchases",
		Method:      http.MethodGet,
		Path:        "/clubs/{club_id}/purchases",
		Summary:     "List purchase requests",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ClubID string `path:"club_id"`
	}) (*struct {
		Body []domain.Purchase `json:"body"`
	}, error) {
		if _, authErr := requireClubAction(ctx, e, input.ClubID, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListPurchases(ctx, input.ClubID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Purchase `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-purchase",
		Method:      http.MethodGet,
		Path:        "/purchases/{purchase_id}",
		Summary:     "Get purchase with its events",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PurchaseID string `path:"purchase_id"`
	}) (*struct {
		Body struct {
			Purchase domain.Purchase        `json:"purchase"`
			Events   []domain.PurchaseEvent `json:"events"`
		} `json:"body"`
	}, error) {
		p, err := e.Repo.GetPurchase(ctx, input.PurchaseID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, authErr := requirePurchaseAction(ctx, e, p, authz.ActionView); authErr != nil {
			return nil, authErr
		}
		events, err := e.Repo.ListPurchaseEvents(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Purchase domain.Purchase        `json:"purchase"`
				Events   []domain.PurchaseEvent `json:"events"`
			} `json:"body"`
		}{}
		out.Body.Purchase = p
		out.Body.Events = events
		return out, nil
	})

	purchaseOp := func(id, pathSuffix, summary string, action authz.Action, run func(ctx context.Context, p domain.Purchase, actorID string) (domain.Purchase, error)) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      http.MethodPost,
			Path:        "/purchases/{purchase_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			PurchaseID string `path:"purchase_id"`
		}) (*struct {
			Body domain.Purchase `json:"body"`
		}, error) {
			p, err := e.Repo.GetPurchase(ctx, input.PurchaseID)
			if err != nil {
				return nil, handleError(err)
			}
			actor, authErr := requirePurchaseAction(ctx, e, p, action)
			if authErr != nil {
				return nil, authErr
			}
			p, err = run(ctx, p, actor.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Purchase `json:"body"`
			}{Body: p}, nil
		})
	}

	purchaseOp("approve-purchase", "approve", "Approve purchase", authz.ActionApprove,
		func(ctx context.Context, p domain.Purchase, actorID string) (domain.Purchase, error) {
			return e.ApprovePurchase(ctx, p.ID, actorID)
		})
	purchaseOp("mark-purchase-purchased", "purchased", "Mark purchase as bought", authz.ActionMarkPurchased,
		func(ctx context.Context, p domain.Purchase, actorID string) (domain.Purchase, error) {
			return e.MarkPurchasePurchased(ctx, p.ID, actorID)
		})
	purchaseOp("mark-purchase-delivered", "delivered", "Mark purchase as delivered", authz.ActionMarkDelivered,
		func(ctx context.Context, p domain.Purchase, actorID string) (domain.Purchase, error) {
			return e.MarkPurchaseDelivered(ctx, p.ID, actorID)
		})
	purchaseOp("mark-purchase-reimbursed", "reimbursed", "Mark purchase as reimbursed", authz.ActionMarkReimbursed,
		func(ctx context.Context, p domain.Purchase, actorID string) (domain.Purchase, error) {
			return e.MarkPurchaseReimbursed(ctx, p.ID, actorID)
		})
	purchaseOp("revert-purchase", "revert", "Undo the latest purchase step", authz.ActionRevertStatus,
		func(ctx context.Context, p domain.Purchase, actorID string) (domain.Purchase, error) {
			return e.RevertPurchase(ctx, p.ID, actorID)
		})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-purchase",
		Method:      http.MethodPost,
		Path:        "/purchases/{purchase_id}/cancel",
		Summary:     "Cancel purchase",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PurchaseID string        `path:"purchase_id"`
		Body       CancelRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.Purchase `json:"body"`
	}, error) {
		p, err := e.Repo.GetPurchase(ctx, input.PurchaseID)
		if err != nil {
			return nil, handleError(err)
		}
		actor, authErr := requirePurchaseAction(ctx, e, p, authz.ActionCancel)
		if authErr != nil {
			return nil, authErr
		}
		p, err = e.CancelPurchase(ctx, p.ID, actor.ID, stringOrEmpty(input.Body.Reason))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Purchase `json:"body"`
		}{Body: p}, nil
	})
}

func requirePurchaseAction(ctx context.Context, e engine.Engine, p domain.Purchase, action authz.Action) (*domain.User, huma.StatusError) {
	actor, authErr := actorFromContext(ctx, e)
	if authErr != nil {
		return nil, authErr
	}
	facts, err := e.Repo.MembershipFacts(ctx, actor.ID, p.ClubID)
	if err != nil {
		return nil, handleError(err)
	}
	if !authz.CanActOnPurchase(actor, facts, p, action) {
		return nil, forbidden(action)
	}
	return actor, nil
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ClubID string `query:"club_id" required:"false"`
	}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		resp := WhoAmIResponse{
			UserID: principal.UserID,
			Admin:  principal.Admin,
			Source: principal.Source,
		}
		if input.ClubID != "" {
			facts, err := e.Repo.MembershipFacts(ctx, principal.UserID, input.ClubID)
			if err != nil {
				return nil, handleError(err)
			}
			resp.Facts = &facts
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, userID, input.Body.Admin)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
