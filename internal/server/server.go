package server

import (
	"bytes"
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

	"pageone/internal/engine"
	"pageone/internal/engine/auth"
	"pageone/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"snippet not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Page One API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Page One API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerSnippets(group, cfg.Engine)
	registerDiscovery(group, cfg.Engine)
	registerTriage(group, cfg.Engine)
	registerShortlist(group, cfg.Engine)
	registerThreads(group, cfg.Engine)
	registerUnread(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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
	var re auth.ForbiddenRoleError
	if errors.As(err, &re) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"required": re.Required})
	}
	var oe auth.NotOwnerError
	if errors.As(err, &oe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"entity_kind": oe.EntityKind, "entity_id": oe.EntityID})
	}
	var pe auth.NotParticipantError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"thread_id": pe.ThreadID})
	}
	switch {
	case errors.Is(err, engine.ErrInvalidCredentials):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, engine.ErrEmailTaken):
		return newAPIError(http.StatusConflict, "email_taken", err.Error(), nil)
	case errors.Is(err, engine.ErrMatchExists):
		return newAPIError(http.StatusConflict, "match_exists", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyTriaged):
		return newAPIError(http.StatusConflict, "already_triaged", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
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

func registerAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "signup",
		Method:      http.MethodPost,
		Path:        "/auth/signup",
		Summary:     "Create an account",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SignUpRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		u, err := e.SignUp(ctx, input.Body.Email, input.Body.Password, input.Body.Type)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signToken(authCfg.JWTSecret, u.ID, u.Email, u.Type, authCfg.tokenTTL(), time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		u, err := e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signToken(authCfg.JWTSecret, u.ID, u.Email, u.Type, authCfg.tokenTTL(), time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current account",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-api-key",
		Method:      http.MethodPost,
		Path:        "/me/apikeys",
		Summary:     "Mint an API key",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw, k, err := e.CreateAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: k.ID, Name: k.Name, Key: raw, CreatedAt: k.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []APIKeyResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []APIKeyResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []APIKeyResponse{}
		for _, k := range keys {
			out.Body.Items = append(out.Body.Items, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/me/apikeys/{key_id}",
		Summary:     "Revoke an API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSnippets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-snippet",
		Method:      http.MethodPost,
		Path:        "/snippets",
		Summary:     "Author a snippet",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateSnippetRequest `json:"body"`
	}) (*struct {
		Body SnippetResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSnippet(ctx, engine.SnippetCreateOptions{
			WriterID:    userID,
			Title:       input.Body.Title,
			Genre:       input.Body.Genre,
			Synopsis:    input.Body.Synopsis,
			Hook:        input.Body.Hook,
			PlotSummary: input.Body.PlotSummary,
			BestScene:   input.Body.BestScene,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SnippetResponse `json:"body"`
		}{Body: snippetResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-snippets",
		Method:      http.MethodGet,
		Path:        "/snippets",
		Summary:     "List your snippets",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []SnippetResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListWriterSnippets(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []SnippetResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []SnippetResponse{}
		for _, s := range items {
			out.Body.Items = append(out.Body.Items, snippetResponse(s))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-snippet",
		Method:      http.MethodGet,
		Path:        "/snippets/{snippet_id}",
		Summary:     "Get one of your snippets",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		SnippetID string `path:"snippet_id"`
	}) (*struct {
		Body SnippetResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.GetSnippet(ctx, input.SnippetID)
		if err != nil {
			return nil, handleError(err)
		}
		if s.WriterID != userID {
			return nil, handleError(auth.NotOwnerError{EntityKind: "snippet", EntityID: s.ID})
		}
		return &struct {
			Body SnippetResponse `json:"body"`
		}{Body: snippetResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-snippet",
		Method:      http.MethodPatch,
		Path:        "/snippets/{snippet_id}",
		Summary:     "Update a snippet",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		SnippetID string               `path:"snippet_id"`
		Body      UpdateSnippetRequest `json:"body"`
	}) (*struct {
		Body SnippetResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateSnippet(ctx, engine.SnippetUpdateOptions{
			ID:          input.SnippetID,
			ActorID:     userID,
			Title:       input.Body.Title,
			Genre:       input.Body.Genre,
			Synopsis:    input.Body.Synopsis,
			Hook:        input.Body.Hook,
			PlotSummary: input.Body.PlotSummary,
			BestScene:   input.Body.BestScene,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SnippetResponse `json:"body"`
		}{Body: snippetResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-snippet",
		Method:      http.MethodDelete,
		Path:        "/snippets/{snippet_id}",
		Summary:     "Delete a snippet",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		SnippetID string `path:"snippet_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteSnippet(ctx, input.SnippetID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDiscovery(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "discovery-next",
		Method:      http.MethodGet,
		Path:        "/discovery/next",
		Summary:     "Draw a random undecided snippet",
		Description: "Excluded ids are session-local skips; they are forgotten as soon as the session ends. An exhausted pool returns 200 with no_more_snippets set.",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Exclude string `query:"exclude" doc:"Comma-separated snippet ids to skip for this draw"`
	}) (*struct {
		Body DiscoveryNextResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var exclude []string
		for _, id := range strings.Split(input.Exclude, ",") {
			if id = strings.TrimSpace(id); id != "" {
				exclude = append(exclude, id)
			}
		}
		s, err := e.NextSnippet(ctx, userID, exclude)
		if errors.Is(err, engine.ErrNoEligibleSnippets) {
			return &struct {
				Body DiscoveryNextResponse `json:"body"`
			}{Body: DiscoveryNextResponse{NoMoreSnippets: true}}, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		card := discoveryCardResponse(s)
		return &struct {
			Body DiscoveryNextResponse `json:"body"`
		}{Body: DiscoveryNextResponse{Snippet: &card}}, nil
	})
}

func registerTriage(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "burn-snippet",
		Method:      http.MethodPost,
		Path:        "/snippets/{snippet_id}/burn",
		Summary:     "Reject a snippet",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SnippetID string `path:"snippet_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Burn(ctx, userID, input.SnippetID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "shortlist-snippet",
		Method:      http.MethodPost,
		Path:        "/snippets/{snippet_id}/shortlist",
		Summary:     "Save a snippet for later",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SnippetID string `path:"snippet_id"`
	}) (*struct {
		Body ShortlistEntryResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.Shortlist(ctx, userID, input.SnippetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShortlistEntryResponse `json:"body"`
		}{Body: shortlistEntryResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "greenlight-snippet",
		Method:      http.MethodPost,
		Path:        "/snippets/{snippet_id}/greenlight",
		Summary:     "Greenlight a snippet and open a thread",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SnippetID string `path:"snippet_id"`
	}) (*struct {
		Body ThreadResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Greenlight(ctx, userID, input.SnippetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ThreadResponse `json:"body"`
		}{Body: threadResponse(t, 0)}, nil
	})
}

func registerShortlist(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-shortlist",
		Method:      http.MethodGet,
		Path:        "/shortlist",
		Summary:     "List your shortlist",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []ShortlistEntryResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entries, err := e.ListShortlist(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []ShortlistEntryResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []ShortlistEntryResponse{}
		for _, entry := range entries {
			out.Body.Items = append(out.Body.Items, shortlistEntryResponse(entry))
		}
		return out, nil
	})
}

func registerThreads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-threads",
		Method:      http.MethodGet,
		Path:        "/threads",
		Summary:     "List your message threads",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []ThreadResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		summaries, err := e.ThreadSummaries(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []ThreadResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []ThreadResponse{}
		for _, s := range summaries {
			out.Body.Items = append(out.Body.Items, threadSummaryResponse(s))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-thread",
		Method:      http.MethodGet,
		Path:        "/threads/{thread_id}",
		Summary:     "Get a thread",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ThreadID string `path:"thread_id"`
	}) (*struct {
		Body ThreadResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetThread(ctx, input.ThreadID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		unread, err := e.Repo.UnreadCountByThread(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ThreadResponse `json:"body"`
		}{Body: threadResponse(t, unread[t.ID])}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-thread",
		Method:      http.MethodDelete,
		Path:        "/threads/{thread_id}",
		Summary:     "Delete a thread and its messages",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ThreadID string `path:"thread_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteThread(ctx, input.ThreadID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/threads/{thread_id}/messages",
		Summary:     "List a thread's conversation",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ThreadID string `path:"thread_id"`
	}) (*struct {
		Body struct {
			Items []MessageResponse `json:"items"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		msgs, err := e.ListThreadMessages(ctx, input.ThreadID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []MessageResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []MessageResponse{}
		for _, m := range msgs {
			out.Body.Items = append(out.Body.Items, messageResponse(m))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/threads/{thread_id}/messages",
		Summary:     "Send a message",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ThreadID string             `path:"thread_id"`
		Body     SendMessageRequest `json:"body"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SendMessage(ctx, input.ThreadID, userID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: messageResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-thread",
		Method:      http.MethodPost,
		Path:        "/threads/{thread_id}/read",
		Summary:     "Mark a thread read",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ThreadID string `path:"thread_id"`
	}) (*struct {
		Body struct {
			MessagesRead int `json:"messages_read"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.MarkThreadRead(ctx, input.ThreadID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				MessagesRead int `json:"messages_read"`
			} `json:"body"`
		}{}
		out.Body.MessagesRead = n
		return out, nil
	})
}

func registerUnread(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "unread",
		Method:      http.MethodGet,
		Path:        "/unread",
		Summary:     "Unread message counts",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UnreadResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		resp, err := unreadResponse(ctx, e, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnreadResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unread-watch",
		Method:      http.MethodGet,
		Path:        "/unread/watch",
		Summary:     "Long-poll for unread count changes",
		Description: "Blocks until a messaging event lands after the cursor or the timeout passes, then returns fresh counts and a new cursor.",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Cursor         int64 `query:"cursor"`
		TimeoutSeconds int   `query:"timeout_seconds" default:"25" maximum:"60"`
	}) (*struct {
		Body UnreadResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		resp, err := watchUnread(ctx, e, userID, input.Cursor, input.TimeoutSeconds)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnreadResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func unreadResponse(ctx context.Context, e engine.Engine, userID string) (UnreadResponse, error) {
	total, byThread, err := e.UnreadSummary(ctx, userID)
	if err != nil {
		return UnreadResponse{}, err
	}
	cursor, err := e.Repo.LatestEventID(ctx)
	if err != nil {
		return UnreadResponse{}, err
	}
	if byThread == nil {
		byThread = map[string]int{}
	}
	return UnreadResponse{Total: total, ByThread: byThread, Cursor: cursor}, nil
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Dashboard summary",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.Stats(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{
			TotalSnippets:  st.TotalSnippets,
			Shortlisted:    st.Shortlisted,
			ActiveMatches:  st.ActiveMatches,
			UnreadMessages: st.UnreadMessages,
		}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"user,snippet,thread"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body struct {
			Items []EventResponse `json:"items"`
		} `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []EventResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []EventResponse{}
		for _, evt := range items {
			out.Body.Items = append(out.Body.Items, eventResponse(evt))
		}
		return out, nil
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
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
    <title>Page One API Docs</title>
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

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
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
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{}
	for _, p := range []string{"health", "auth/signup", "auth/login"} {
		route := path.Join(basePath, p)
		if !strings.HasPrefix(route, "/") {
			route = "/" + route
		}
		open[route] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
