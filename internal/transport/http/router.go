// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/aiqx/core-service/internal/auth"
	"github.com/aiqx/core-service/internal/authz"
	"github.com/aiqx/core-service/internal/domain"
	"github.com/aiqx/core-service/internal/metrics"
	"github.com/aiqx/core-service/internal/transport/middleware"
	"github.com/aiqx/core-service/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var plantIDPattern = regexp.MustCompile(`^P\d{2}$`)

type createUseCaseRequest struct {
	Name     string `json:"name"`
	PlantID  string `json:"plant_id"`
	Building string `json:"building"`
	Image    string `json:"image"`
	Line     string `json:"line"`
	Position string `json:"position"`
}

type updateUseCaseRequest struct {
	Name     *string `json:"name"`
	Image    *string `json:"image"`
	Building *string `json:"building"`
	Line     *string `json:"line"`
	Position *string `json:"position"`
	PlantID  *string `json:"plant_id"`
}

type createAttachmentRequest struct {
	Type     string `json:"type"`
	RefID    string `json:"ref_id"`
	Filename string `json:"filename"`
}

type plantRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type listResponse struct {
	Data   []domain.UseCase `json:"data"`
	Paging domain.Paging    `json:"paging"`
}

type Deps struct {
	Service       UseCaseService
	Plants        PlantService
	Logger        *slog.Logger
	InternalToken string
	Health        HealthChecker
	Version       string
	Commit        string
	BuildDate     string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Use(middleware.Identity(deps.InternalToken, logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- USE CASES ----------------

	r.Route("/v1/use-cases", func(uc chi.Router) {
		uc.Get("/", func(w http.ResponseWriter, r *http.Request) {
			filter := domain.ListFilter{
				Query:   strings.TrimSpace(r.URL.Query().Get("q")),
				PlantID: strings.TrimSpace(r.URL.Query().Get("plant_id")),
				Page:    queryInt(r, "page"),
				Limit:   queryInt(r, "limit"),
			}

			useCases, paging, err := deps.Service.List(r.Context(), filter)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, listResponse{Data: useCases, Paging: paging})
		})

		uc.Post("/", func(w http.ResponseWriter, r *http.Request) {
			actor, ok := requireActor(w, r)
			if !ok {
				return
			}

			var req createUseCaseRequest
			if err := decodeBody(r, &req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			created, err := deps.Service.Create(r.Context(), workflow.CreateParams{
				Name:     req.Name,
				PlantID:  req.PlantID,
				Building: req.Building,
				Image:    req.Image,
				Line:     req.Line,
				Position: req.Position,
			}, actor.ID)
			if err != nil {
				writeError(w, logger, err)
				return
			}

			writeJSON(w, http.StatusCreated, created)
		})

		uc.Route("/{id}", func(one chi.Router) {
			one.Get("/", func(w http.ResponseWriter, r *http.Request) {
				id, ok := useCaseID(w, r)
				if !ok {
					return
				}

				useCase, err := deps.Service.Get(r.Context(), id)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, useCase)
			})

			one.Put("/", func(w http.ResponseWriter, r *http.Request) {
				id, actor, current, ok := loadForGuard(w, r, deps.Service, logger)
				if !ok {
					return
				}
				if denial := authz.CanEditUseCase(actor, current); denial != nil {
					writeError(w, logger, denial)
					return
				}

				var req updateUseCaseRequest
				if err := decodeBody(r, &req); err != nil {
					http.Error(w, "invalid request body", http.StatusBadRequest)
					return
				}

				updated, err := deps.Service.Update(r.Context(), id, workflow.UpdateParams{
					Name:     req.Name,
					Image:    req.Image,
					Building: req.Building,
					Line:     req.Line,
					Position: req.Position,
					PlantID:  req.PlantID,
				})
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, updated)
			})

			one.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				id, actor, current, ok := loadForGuard(w, r, deps.Service, logger)
				if !ok {
					return
				}
				if denial := authz.CanDelete(actor, current); denial != nil {
					writeError(w, logger, denial)
					return
				}

				if err := deps.Service.Delete(r.Context(), id); err != nil {
					writeError(w, logger, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			one.Post("/status/{status}", func(w http.ResponseWriter, r *http.Request) {
				status, err := domain.ParseStatus(chi.URLParam(r, "status"))
				if err != nil {
					writeError(w, logger, err)
					return
				}

				id, actor, current, ok := loadForGuard(w, r, deps.Service, logger)
				if !ok {
					return
				}
				if denial := authz.CanChangeStatus(actor, current, status); denial != nil {
					writeError(w, logger, denial)
					return
				}

				updated, err := deps.Service.SetStatus(r.Context(), id, status)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, updated)
			})

			one.Put("/step/{step}", func(w http.ResponseWriter, r *http.Request) {
				step, err := domain.ParseStep(chi.URLParam(r, "step"))
				if err != nil {
					writeError(w, logger, err)
					return
				}

				id, actor, current, ok := loadForGuard(w, r, deps.Service, logger)
				if !ok {
					return
				}
				if denial := authz.CanEditStep(actor, current, step); denial != nil {
					writeError(w, logger, denial)
					return
				}

				form, err := io.ReadAll(r.Body)
				if err != nil || len(form) == 0 {
					http.Error(w, "invalid request body", http.StatusBadRequest)
					return
				}

				updated, err := deps.Service.SubmitStep(r.Context(), id, step, actor.ID, form)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, updated)
			})

			one.Post("/step/{step}/complete", func(w http.ResponseWriter, r *http.Request) {
				step, err := domain.ParseStep(chi.URLParam(r, "step"))
				if err != nil {
					writeError(w, logger, err)
					return
				}

				id, actor, current, ok := loadForGuard(w, r, deps.Service, logger)
				if !ok {
					return
				}
				if denial := authz.CanEditStep(actor, current, step); denial != nil {
					writeError(w, logger, denial)
					return
				}

				updated, err := deps.Service.CompleteStep(r.Context(), id, step)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, updated)
			})

			one.Get("/attachments", func(w http.ResponseWriter, r *http.Request) {
				id, ok := useCaseID(w, r)
				if !ok {
					return
				}

				attachments, err := deps.Service.ListAttachments(r.Context(), id)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, attachments)
			})

			one.Post("/attachments", func(w http.ResponseWriter, r *http.Request) {
				var req createAttachmentRequest
				if err := decodeBody(r, &req); err != nil {
					http.Error(w, "invalid request body", http.StatusBadRequest)
					return
				}

				attType, err := domain.ParseAttachmentType(req.Type)
				if err != nil {
					writeError(w, logger, err)
					return
				}

				id, actor, current, ok := loadForGuard(w, r, deps.Service, logger)
				if !ok {
					return
				}
				if denial := authz.CanAddAttachment(actor, current, attType); denial != nil {
					writeError(w, logger, denial)
					return
				}

				created, err := deps.Service.AddAttachment(r.Context(), id, workflow.AddAttachmentParams{
					Type:     attType,
					RefID:    req.RefID,
					Filename: req.Filename,
				}, actor.ID)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusCreated, created)
			})
		})
	})

	// ---------------- PLANTS ----------------

	if deps.Plants != nil {
		r.Route("/v1/plants", func(plants chi.Router) {
			plants.Get("/", func(w http.ResponseWriter, r *http.Request) {
				all, err := deps.Plants.ListPlants(r.Context())
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, all)
			})

			plants.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
				plant, err := deps.Plants.GetPlant(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, plant)
			})

			plants.Post("/", func(w http.ResponseWriter, r *http.Request) {
				if !requireReviewTeam(w, r) {
					return
				}

				var req plantRequest
				if err := decodeBody(r, &req); err != nil {
					http.Error(w, "invalid request body", http.StatusBadRequest)
					return
				}
				if !plantIDPattern.MatchString(req.ID) {
					http.Error(w, "plant ID is not valid", http.StatusBadRequest)
					return
				}

				plant, err := deps.Plants.CreatePlant(r.Context(), req.ID, req.Name)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusCreated, plant)
			})

			plants.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
				if !requireReviewTeam(w, r) {
					return
				}

				var req plantRequest
				if err := decodeBody(r, &req); err != nil {
					http.Error(w, "invalid request body", http.StatusBadRequest)
					return
				}

				plant, err := deps.Plants.UpdatePlant(r.Context(), chi.URLParam(r, "id"), req.Name)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, plant)
			})

			plants.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
				if !requireReviewTeam(w, r) {
					return
				}

				if err := deps.Plants.DeletePlant(r.Context(), chi.URLParam(r, "id")); err != nil {
					writeError(w, logger, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
		})
	}

	return r
}

func useCaseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid use case ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return auth.Actor{}, false
	}
	return actor, true
}

func requireReviewTeam(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := requireActor(w, r)
	if !ok {
		return false
	}
	if !actor.Internal && !actor.HasRole(domain.RoleReviewTeam) {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":  "permission denied",
			"reason": string(domain.DenialWrongRoleForStep),
		})
		return false
	}
	return true
}

// loadForGuard resolves the route id, the acting user and a snapshot of
// the use case so the authz check runs before any mutation.
func loadForGuard(w http.ResponseWriter, r *http.Request, svc UseCaseService, logger *slog.Logger) (uuid.UUID, auth.Actor, *domain.UseCase, bool) {
	id, ok := useCaseID(w, r)
	if !ok {
		return uuid.Nil, auth.Actor{}, nil, false
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return uuid.Nil, auth.Actor{}, nil, false
	}

	current, err := svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, logger, err)
		return uuid.Nil, auth.Actor{}, nil, false
	}

	return id, actor, current, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP responses. Permission denials
// and workflow violations carry their discriminant so clients can react
// to the specific reason.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
		return
	}

	var denial *domain.PermissionDenied
	if errors.As(err, &denial) {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":  denial.Error(),
			"reason": string(denial.Reason),
		})
		return
	}

	var violation *domain.WorkflowViolation
	if errors.As(err, &violation) {
		body := map[string]string{
			"error": violation.Error(),
			"kind":  string(violation.Kind),
		}
		if violation.Kind == domain.ViolationOutOfOrder {
			body["expected"] = violation.Expected.String()
		}
		writeJSON(w, http.StatusConflict, body)
		return
	}

	switch {
	case errors.Is(err, domain.ErrUseCaseNotFound),
		errors.Is(err, domain.ErrPlantNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", "1")
		}
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decodeBody(r *http.Request, v any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return errors.New("empty request body")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}

	return nil
}

func queryInt(r *http.Request, key string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
