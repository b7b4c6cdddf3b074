package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/deadhandprotocol/deadhand-backend/kms"
	"github.com/deadhandprotocol/deadhand-backend/service"
)

// Handler serves the vault API.
type Handler struct {
	service *service.Service
	// shamirKMS is set when the deployment boots locked; nil means the
	// KMS needs no bootstrap.
	shamirKMS *kms.ShamirKMS
	log       *slog.Logger
}

// NewHandler creates a handler. shamirKMS may be nil.
func NewHandler(svc *service.Service, shamirKMS *kms.ShamirKMS, log *slog.Logger) *Handler {
	return &Handler{
		service:   svc,
		shamirKMS: shamirKMS,
		log:       log,
	}
}

// KMSReady reports whether key derivation is available.
func (h *Handler) KMSReady() bool {
	if h.shamirKMS == nil {
		return true
	}
	return h.shamirKMS.IsUnlocked()
}

type createVaultRequest struct {
	// Secret is the base64 (URL-safe, unpadded) plaintext to protect.
	Secret             string                         `json:"secret"`
	Threshold          int                            `json:"threshold"`
	TotalShares        int                            `json:"total_shares"`
	OwnerContact       string                         `json:"owner_contact"`
	BeneficiaryContact string                         `json:"beneficiary_contact"`
	Schedule           *interfaces.EscalationSchedule `json:"schedule,omitempty"`
}

type createVaultResponse struct {
	VaultID        string    `json:"vault_id"`
	HeartbeatToken string    `json:"heartbeat_token"`
	OwnerShares    []string  `json:"owner_shares"`
	NextDeadline   time.Time `json:"next_deadline"`
}

// HandleCreateVault creates a vault from a JSON request body.
func (h *Handler) HandleCreateVault(w http.ResponseWriter, r *http.Request) {
	var req createVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	secret, err := base64.RawURLEncoding.DecodeString(req.Secret)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "secret must be URL-safe base64")
		return
	}

	resp, err := h.service.CreateVault(r.Context(), service.CreateVaultRequest{
		Secret:             secret,
		Threshold:          req.Threshold,
		TotalShares:        req.TotalShares,
		OwnerContact:       interfaces.Contact(req.OwnerContact),
		BeneficiaryContact: interfaces.Contact(req.BeneficiaryContact),
		Schedule:           req.Schedule,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, createVaultResponse{
		VaultID:        resp.VaultID.String(),
		HeartbeatToken: resp.HeartbeatToken,
		OwnerShares:    resp.OwnerShares,
		NextDeadline:   resp.NextDeadline,
	})
}

type heartbeatResponse struct {
	Status       string    `json:"status"`
	NextDeadline time.Time `json:"next_deadline"`
}

// HandleHeartbeat records an owner check-in.
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.ParseVaultID(chi.URLParam(r, "vault_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid vault id")
		return
	}

	next, err := h.service.Heartbeat(r.Context(), id, chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, heartbeatResponse{
		Status:       "accepted",
		NextDeadline: next,
	})
}

// HandleStatus returns the vault's lifecycle view.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.ParseVaultID(chi.URLParam(r, "vault_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid vault id")
		return
	}

	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleMarkRecovered records the beneficiary's acknowledgement.
func (h *Handler) HandleMarkRecovered(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.ParseVaultID(chi.URLParam(r, "vault_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid vault id")
		return
	}

	if err := h.service.MarkRecovered(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "recovered"})
}

type kmsShareRequest struct {
	// Share and Signature are base64 (standard) encoded.
	Share     string `json:"share"`
	Signature string `json:"signature"`
	// AdminPubKey is the registered administrator public key in PEM.
	AdminPubKey string `json:"admin_pubkey"`
}

// HandleKMSShare accepts one master key share during locked-boot
// recovery.
func (h *Handler) HandleKMSShare(w http.ResponseWriter, r *http.Request) {
	if h.shamirKMS == nil {
		h.writeError(w, http.StatusNotFound, "KMS bootstrap is not enabled")
		return
	}

	var req kmsShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	share, err := base64.StdEncoding.DecodeString(req.Share)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "share must be base64")
		return
	}
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "signature must be base64")
		return
	}

	if err := h.shamirKMS.SubmitShare(share, signature, []byte(req.AdminPubKey)); err != nil {
		h.log.Warn("KMS share submission rejected", "err", err)
		h.writeError(w, http.StatusForbidden, "share rejected")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"unlocked":        h.shamirKMS.IsUnlocked(),
		"shares_received": h.shamirKMS.SharesReceived(),
		"threshold":       h.shamirKMS.Threshold(),
	})
}

// HandleKMSStatus reports bootstrap progress.
func (h *Handler) HandleKMSStatus(w http.ResponseWriter, r *http.Request) {
	if h.shamirKMS == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"unlocked": true})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"unlocked":        h.shamirKMS.IsUnlocked(),
		"shares_received": h.shamirKMS.SharesReceived(),
		"threshold":       h.shamirKMS.Threshold(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the error taxonomy onto HTTP status codes. The
// response body never echoes internal error details for security
// sensitive failures.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrVaultNotFound):
		h.writeError(w, http.StatusNotFound, "vault not found")
	case errors.Is(err, interfaces.ErrInvalidToken):
		h.writeError(w, http.StatusUnauthorized, "invalid heartbeat token")
	case errors.Is(err, interfaces.ErrVaultAlreadyTriggered):
		h.writeError(w, http.StatusConflict, "vault already triggered")
	case errors.Is(err, interfaces.ErrPolicyViolation):
		h.writeError(w, http.StatusConflict, "operation not permitted in current state")
	case errors.Is(err, interfaces.ErrInvalidThreshold),
		errors.Is(err, interfaces.ErrEmptySecret),
		errors.Is(err, interfaces.ErrInvalidSchedule):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("Request failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
