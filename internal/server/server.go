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

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"rageraps/internal/arena"
	"rageraps/internal/domain"
	"rageraps/internal/engine"
	"rageraps/internal/knowledge"
	"rageraps/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"round_conflict"`
	Message string         `json:"message" example:"round already has a judgment"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the battle API.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("RageRaps API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerBattles(group, cfg.Engine)
	registerRounds(group, cfg.Engine)
	registerKnowledge(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
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
	if errors.Is(err, engine.ErrRoundAlreadyJudged) || errors.Is(err, engine.ErrBattleCompleted) {
		return newAPIError(http.StatusConflict, "round_conflict", err.Error(), nil)
	}
	var formatErr *arena.FormatError
	if errors.As(err, &formatErr) {
		return newAPIError(http.StatusUnprocessableEntity, "verdict_format", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrRoundPending) {
		return newAPIError(http.StatusUnprocessableEntity, "judgment_pending", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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

func registerBattles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-battle",
		Method:        http.MethodPost,
		Path:          "/battles",
		Summary:       "Create battle",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateBattleRequest `json:"body"`
	}) (*struct {
		Body domain.Battle `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.CreateBattle(ctx, engine.BattleCreateOptions{
			Contestant1: input.Body.Contestant1,
			Contestant2: input.Body.Contestant2,
			Style1:      input.Body.Style1,
			Style2:      input.Body.Style2,
			Rounds:      input.Body.Rounds,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Battle `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-battles",
		Method:      http.MethodGet,
		Path:        "/battles",
		Summary:     "List battles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BattleListResponse `json:"body"`
	}, error) {
		battles, err := e.ListBattles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BattleListResponse `json:"body"`
		}{Body: BattleListResponse{Battles: battles}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-battle",
		Method:      http.MethodGet,
		Path:        "/battles/{battle_id}",
		Summary:     "Get battle with rounds",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BattleID string `path:"battle_id"`
	}) (*struct {
		Body domain.Battle `json:"body"`
	}, error) {
		b, err := e.GetBattle(ctx, input.BattleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Battle `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-battle",
		Method:        http.MethodDelete,
		Path:          "/battles/{battle_id}",
		Summary:       "Delete battle",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		BattleID string `path:"battle_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteBattle(ctx, input.BattleID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-battle",
		Method:      http.MethodPost,
		Path:        "/battles/{battle_id}/advance",
		Summary:     "Run the next round",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		BattleID string `path:"battle_id"`
	}) (*struct {
		Body domain.Round `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rnd, err := e.AdvanceRound(ctx, input.BattleID, actorID)
		if err != nil {
			// A verdict format failure still persisted the round.
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Round `json:"body"`
		}{Body: rnd}, nil
	})
}

func registerRounds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "judge-round",
		Method:      http.MethodPost,
		Path:        "/battles/{battle_id}/rounds/{round_id}/judge",
		Summary:     "Request AI judgment for a round",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		BattleID string `path:"battle_id"`
		RoundID  string `path:"round_id"`
	}) (*struct {
		Body domain.Judgment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.JudgeRoundAI(ctx, input.BattleID, input.RoundID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Judgment `json:"body"`
		}{Body: j}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-judge-round",
		Method:      http.MethodPost,
		Path:        "/battles/{battle_id}/rounds/{round_id}/user-judge",
		Summary:     "Record a manual judgment for a round",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		BattleID string                `path:"battle_id"`
		RoundID  string                `path:"round_id"`
		Body     ManualJudgmentRequest `json:"body"`
	}) (*struct {
		Body domain.Judgment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Winner == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "winner is required", nil)
		}
		j, err := e.RecordManualJudgment(ctx, input.BattleID, input.RoundID, input.Body.Winner, input.Body.Feedback, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Judgment `json:"body"`
		}{Body: j}, nil
	})
}

func registerKnowledge(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "search-knowledge",
		Method:      http.MethodGet,
		Path:        "/knowledge",
		Summary:     "Search stored knowledge for an entity",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string `query:"entity"`
		Style  string `query:"style"`
		Kind   string `query:"kind" default:"lyric" enum:"lyric,bio"`
		Limit  int    `query:"limit" default:"5" minimum:"1" maximum:"50"`
	}) (*struct {
		Body SnippetListResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Entity) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "entity is required", nil)
		}
		store := knowledge.Store{DB: e.DB}
		snippets, err := store.Retrieve(ctx, input.Entity, input.Style, input.Kind, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SnippetListResponse `json:"body"`
		}{Body: SnippetListResponse{Snippets: snippets}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-knowledge",
		Method:        http.MethodPost,
		Path:          "/knowledge/import",
		Summary:       "Import lyrics/bios from CSV (artist,style,title,kind,content)",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"text/csv"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "csv body is required", nil)
		}
		n, err := knowledge.ImportCSV(ctx, e.DB, bytes.NewReader(input.RawBody))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Imported: n}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		BattleID string `query:"battle_id"`
		Type     string `query:"type"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		events, err := e.Repo.LatestEvents(ctx, input.Limit, input.BattleID, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Events: events}}, nil
	})
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
    <title>RageRaps API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.onload = () => {
        window.ui = SwaggerUIBundle({ url: %q, dom_id: "#swagger-ui" });
      };
    </script>
  </body>
</html>`, specURL)
}
