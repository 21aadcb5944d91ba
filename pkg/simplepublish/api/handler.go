package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// Handler serves the publication API on top of a simplepublish.Service.
type Handler struct {
	service simplepublish.Service
}

// NewHandler creates a new publication handler
func NewHandler(service simplepublish.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the routes for publications, accounts, attempts and capabilities
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/publications", h.CreatePublication)
	r.Route("/publications/{id}", func(r chi.Router) {
		r.Get("/", h.GetPublication)
		r.Post("/preview", h.GeneratePreview)
		r.Post("/auto-optimize", h.AutoOptimize)
		r.Get("/platform-config", h.GetPlatformConfigurations)
		r.Patch("/platform-config/{accountId}", h.UpdatePlatformConfiguration)
		r.Post("/publish", h.Publish)
		r.Get("/attempts", h.ListPublishAttempts)
	})

	r.Post("/accounts", h.CreateSocialAccount)

	r.Post("/attempts/{attemptId}/retry", h.RetryPublish)
	r.Post("/attempts/{attemptId}/cancel", h.CancelPublish)

	r.Get("/capabilities", h.GetCapabilities)

	return r
}

// CreatePublicationBody is the request body for creating a publication
type CreatePublicationBody struct {
	WorkspaceID int64                  `json:"workspace_id"`
	Title       string                 `json:"title"`
	Caption     string                 `json:"caption"`
	Description string                 `json:"description"`
	MediaFiles  []string               `json:"media_files"`
	MediaInfo   *rules.MediaDescriptor `json:"media_info,omitempty"`
}

// CreateAccountBody is the request body for registering a social account
type CreateAccountBody struct {
	WorkspaceID int64  `json:"workspace_id"`
	Platform    string `json:"platform"`
	AccountName string `json:"account_name"`
}

// PreviewBody is the request body for preview and auto-optimize
type PreviewBody struct {
	PlatformIDs  []int64 `json:"platform_ids"`
	AutoOptimize bool    `json:"auto_optimize"`
}

// PlatformConfigBody is the request body for an explicit platform override
type PlatformConfigBody struct {
	Type           string         `json:"type"`
	CustomSettings map[string]any `json:"custom_settings"`
}

// PublishBody is the request body for publishing
type PublishBody struct {
	PlatformIDs []int64 `json:"platform_ids"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// scopedWorkspace resolves the workspace for a create call. A token-scoped
// request may omit workspace_id but cannot name another workspace.
func scopedWorkspace(w http.ResponseWriter, r *http.Request, requested int64) (int64, bool) {
	ws, scoped := WorkspaceFromContext(r.Context())
	if !scoped {
		return requested, true
	}
	if requested != 0 && requested != ws {
		writeJSONError(w, r, http.StatusForbidden, "forbidden", "workspace_id does not match token")
		return 0, false
	}
	return ws, true
}

// publication loads the {id} publication, hiding publications of other workspaces.
func (h *Handler) publication(w http.ResponseWriter, r *http.Request, op string, id uuid.UUID) (*simplepublish.Publication, bool) {
	pub, err := h.service.GetPublication(r.Context(), id)
	if err != nil {
		writeError(w, r, op, err)
		return nil, false
	}
	if ws, scoped := WorkspaceFromContext(r.Context()); scoped && pub.WorkspaceID != ws {
		writeError(w, r, op, fmt.Errorf("%w: %s", simplepublish.ErrPublicationNotFound, id))
		return nil, false
	}
	return pub, true
}

func (h *Handler) publicationParam(w http.ResponseWriter, r *http.Request, op string) (*simplepublish.Publication, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Invalid publication ID")
		return nil, false
	}
	return h.publication(w, r, op, id)
}

// attemptParam loads the {attemptId} attempt after checking its publication is visible.
func (h *Handler) attemptParam(w http.ResponseWriter, r *http.Request, op string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "attemptId"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Invalid attempt ID")
		return uuid.Nil, false
	}
	attempt, err := h.service.GetPublishAttempt(r.Context(), id)
	if err != nil {
		writeError(w, r, op, err)
		return uuid.Nil, false
	}
	if _, ok := h.publication(w, r, op, attempt.PublicationID); !ok {
		return uuid.Nil, false
	}
	return id, true
}

// CreatePublication creates a new draft publication
func (h *Handler) CreatePublication(w http.ResponseWriter, r *http.Request) {
	var body CreatePublicationBody
	if !decode(w, r, &body) {
		return
	}
	workspaceID, ok := scopedWorkspace(w, r, body.WorkspaceID)
	if !ok {
		return
	}

	pub, err := h.service.CreatePublication(r.Context(), simplepublish.CreatePublicationRequest{
		WorkspaceID: workspaceID,
		Title:       body.Title,
		Caption:     body.Caption,
		Description: body.Description,
		MediaFiles:  body.MediaFiles,
		MediaInfo:   body.MediaInfo,
	})
	if err != nil {
		writeError(w, r, "create_publication", err)
		return
	}

	slog.Info("Publication created", "publication_id", pub.ID, "workspace_id", pub.WorkspaceID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, pub)
}

// GetPublication returns a publication by ID
func (h *Handler) GetPublication(w http.ResponseWriter, r *http.Request) {
	pub, ok := h.publicationParam(w, r, "get_publication")
	if !ok {
		return
	}
	render.JSON(w, r, pub)
}

// CreateSocialAccount registers a social account in a workspace
func (h *Handler) CreateSocialAccount(w http.ResponseWriter, r *http.Request) {
	var body CreateAccountBody
	if !decode(w, r, &body) {
		return
	}
	workspaceID, ok := scopedWorkspace(w, r, body.WorkspaceID)
	if !ok {
		return
	}

	platform, err := rules.ParsePlatform(body.Platform)
	if err != nil {
		writeError(w, r, "create_account", err)
		return
	}

	account, err := h.service.CreateSocialAccount(r.Context(), simplepublish.CreateSocialAccountRequest{
		WorkspaceID: workspaceID,
		Platform:    platform,
		AccountName: body.AccountName,
	})
	if err != nil {
		writeError(w, r, "create_account", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, account)
}

// GeneratePreview builds the per-account preview for a publication
func (h *Handler) GeneratePreview(w http.ResponseWriter, r *http.Request) {
	pub, ok := h.publicationParam(w, r, "generate_preview")
	if !ok {
		return
	}
	var body PreviewBody
	if !decode(w, r, &body) {
		return
	}

	preview, err := h.service.GeneratePreview(r.Context(), simplepublish.PreviewRequest{
		PublicationID: pub.ID,
		AccountIDs:    body.PlatformIDs,
		AutoOptimize:  body.AutoOptimize,
	})
	if err != nil {
		writeError(w, r, "generate_preview", err)
		return
	}
	render.JSON(w, r, preview)
}

// AutoOptimize builds a preview with optimization forced on
func (h *Handler) AutoOptimize(w http.ResponseWriter, r *http.Request) {
	pub, ok := h.publicationParam(w, r, "auto_optimize")
	if !ok {
		return
	}
	var body PreviewBody
	if !decode(w, r, &body) {
		return
	}

	preview, err := h.service.AutoOptimize(r.Context(), pub.ID, body.PlatformIDs)
	if err != nil {
		writeError(w, r, "auto_optimize", err)
		return
	}
	render.JSON(w, r, preview)
}

// UpdatePlatformConfiguration applies an explicit type and settings override for one account
func (h *Handler) UpdatePlatformConfiguration(w http.ResponseWriter, r *http.Request) {
	pub, ok := h.publicationParam(w, r, "update_platform_config")
	if !ok {
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Invalid account ID")
		return
	}
	var body PlatformConfigBody
	if !decode(w, r, &body) {
		return
	}

	cfg, err := h.service.UpdatePlatformConfiguration(r.Context(), simplepublish.UpdatePlatformConfigRequest{
		PublicationID:  pub.ID,
		AccountID:      accountID,
		Type:           rules.ContentType(body.Type),
		CustomSettings: body.CustomSettings,
	})
	if err != nil {
		writeError(w, r, "update_platform_config", err)
		return
	}
	render.JSON(w, r, cfg)
}

// GetPlatformConfigurations returns the persisted platform settings map
func (h *Handler) GetPlatformConfigurations(w http.ResponseWriter, r *http.Request) {
	pub, ok := h.publicationParam(w, r, "get_platform_config")
	if !ok {
		return
	}
	settings, err := h.service.GetPlatformConfigurations(r.Context(), pub.ID)
	if err != nil {
		writeError(w, r, "get_platform_config", err)
		return
	}
	render.JSON(w, r, settings)
}

// Publish publishes a publication to the given accounts
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	pub, ok := h.publicationParam(w, r, "publish")
	if !ok {
		return
	}
	var body PublishBody
	if !decode(w, r, &body) {
		return
	}

	report, err := h.service.Publish(r.Context(), simplepublish.PublishRequest{
		PublicationID: pub.ID,
		AccountIDs:    body.PlatformIDs,
	})
	if err != nil {
		writeError(w, r, "publish", err)
		return
	}
	render.JSON(w, r, report)
}

// ListPublishAttempts lists the publish log of a publication
func (h *Handler) ListPublishAttempts(w http.ResponseWriter, r *http.Request) {
	pub, ok := h.publicationParam(w, r, "list_attempts")
	if !ok {
		return
	}
	attempts, err := h.service.ListPublishAttempts(r.Context(), pub.ID)
	if err != nil {
		writeError(w, r, "list_attempts", err)
		return
	}
	if attempts == nil {
		attempts = []*simplepublish.PublishAttempt{}
	}
	render.JSON(w, r, attempts)
}

// RetryPublish re-runs a failed attempt
func (h *Handler) RetryPublish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attemptParam(w, r, "retry_publish")
	if !ok {
		return
	}
	attempt, err := h.service.RetryPublish(r.Context(), id)
	if err != nil {
		writeError(w, r, "retry_publish", err)
		return
	}
	render.JSON(w, r, attempt)
}

// CancelPublish cancels a pending attempt
func (h *Handler) CancelPublish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attemptParam(w, r, "cancel_publish")
	if !ok {
		return
	}
	attempt, err := h.service.CancelPublish(r.Context(), id)
	if err != nil {
		writeError(w, r, "cancel_publish", err)
		return
	}
	render.JSON(w, r, attempt)
}

// GetCapabilities returns the capability table, optionally for one platform
func (h *Handler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	table := h.service.Capabilities()
	if p := r.URL.Query().Get("platform"); p != "" {
		platform, err := rules.ParsePlatform(p)
		if err != nil {
			writeError(w, r, "get_capabilities", err)
			return
		}
		render.JSON(w, r, map[rules.Platform][]rules.Capability{platform: table.Capabilities(platform)})
		return
	}
	render.JSON(w, r, table.All())
}
