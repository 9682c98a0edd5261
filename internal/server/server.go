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
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"hostflow/internal/engine"
	"hostflow/internal/engine/auth"
	"hostflow/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"entity_read_only"`
	Message string         `json:"message" example:"entity is approved and read-only"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the hostflow sandbox API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("hostflow sandbox API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerMe(group, cfg.Engine, basePath)
	registerEntities(group, cfg.Engine, basePath)
	registerEvents(group, cfg.Engine)
	registerGroups(group, cfg.Engine)
	registerMedia(router, cfg.Engine, basePath)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ce *engine.CodedError
	if errors.As(err, &ce) {
		return newAPIError(ce.Status, ce.Code, ce.Message, nil)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		var details map[string]any
		if fe.Role != "" {
			details = map[string]any{"role": fe.Role}
		}
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "read-only"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
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
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>hostflow sandbox API</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; from POST /auth/dev/login.
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

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: store a profile and mint a JWT for it",
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
		p, err := e.SaveProfile(ctx, repo.Profile{
			UserID: userID,
			Name:   strings.TrimSpace(input.Body.Name),
			Email:  strings.TrimSpace(input.Body.Email),
			Phone:  strings.TrimSpace(input.Body.Phone),
			Roles:  input.Body.Roles,
		})
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signDevToken(authCfg.JWTSecret, p.UserID, p.Roles, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine, basePath string) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user profile",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Profile(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		// Roles come from the token so a re-login is not needed after promotion.
		if len(actor.Roles) > 0 {
			p.Roles = actor.Roles
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: profileResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-entities",
		Method:      http.MethodGet,
		Path:        "/me/entities",
		Summary:     "Entities owned by the caller, drafts included",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body entityList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Mine(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		resp := entityList{Items: []EntityResponse{}}
		for _, it := range items {
			resp.Items = append(resp.Items, entityResponse(basePath, it))
		}
		return &struct {
			Body entityList `json:"body"`
		}{Body: resp}, nil
	})
}

type entityPath struct {
	ID string `path:"id"`
}

type entityOutput struct {
	Body EntityResponse `json:"body"`
}

func registerEntities(api huma.API, e engine.Engine, basePath string) {
	respond := func(ent engine.Entity, err error) (*entityOutput, error) {
		if err != nil {
			return nil, handleError(err)
		}
		return &entityOutput{Body: entityResponse(basePath, ent)}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "create-entity",
		Method:      http.MethodPost,
		Path:        "/entities",
		Summary:     "Create a draft entity",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateEntityRequest `json:"body"`
	}) (*entityOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.CreateDraft(ctx, actor, input.Body.Kind, input.Body.Fields))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/entities/{id}",
		Summary:     "Get an entity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *entityPath) (*entityOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.Get(ctx, actor, input.ID))
	})

	for _, section := range []string{engine.SectionBasic, engine.SectionLocation, engine.SectionPricing} {
		huma.Register(api, huma.Operation{
			OperationID: "update-" + section,
			Method:      http.MethodPatch,
			Path:        "/entities/{id}/" + section,
			Summary:     "Update the " + section + " section",
			Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			ID   string               `path:"id"`
			Body UpdateSectionRequest `json:"body"`
		}) (*entityOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			return respond(e.UpdateSection(ctx, actor, input.ID, section, input.Body.Fields))
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "update-amenities",
		Method:      http.MethodPut,
		Path:        "/entities/{id}/amenities",
		Summary:     "Replace the amenities or group rules list",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body UpdateAmenitiesRequest `json:"body"`
	}) (*entityOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.UpdateAmenities(ctx, actor, input.ID, input.Body.Items))
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-entity",
		Method:      http.MethodPost,
		Path:        "/entities/{id}/submit",
		Summary:     "Submit an entity for review",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *entityPath) (*entityOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.Submit(ctx, actor, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-entity",
		Method:      http.MethodPost,
		Path:        "/entities/{id}/approve",
		Summary:     "Approve a submitted entity (moderators)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *entityPath) (*entityOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.Approve(ctx, actor, input.ID))
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-entity-events",
		Method:      http.MethodGet,
		Path:        "/entities/{id}/events",
		Summary:     "Audit trail of an entity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body eventList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.Get(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Events.ForEntity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := eventList{Items: []EventResponse{}}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body eventList `json:"body"`
		}{Body: resp}, nil
	})
}

func registerGroups(api huma.API, e engine.Engine) {
	type groupOutput struct {
		Body MembershipResponse `json:"body"`
	}
	ops := []struct {
		id, method, action, summary string
		call                        func(context.Context, auth.Actor, string) (engine.MembershipState, error)
		errors                      []int
	}{
		{"join-group", http.MethodPost, "join", "Join a group", e.Join, []int{http.StatusNotFound, http.StatusConflict}},
		{"leave-group", http.MethodPost, "leave", "Leave a group", e.Leave, []int{http.StatusNotFound, http.StatusConflict}},
		{"group-membership", http.MethodGet, "membership", "Caller's membership of a group", e.Membership, []int{http.StatusNotFound}},
	}
	for _, op := range ops {
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      op.method,
			Path:        "/groups/{id}/" + op.action,
			Summary:     op.summary,
			Errors:      op.errors,
		}, func(ctx context.Context, input *entityPath) (*groupOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			st, err := op.call(ctx, actor, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &groupOutput{Body: membershipResponse(st)}, nil
		})
	}
}
