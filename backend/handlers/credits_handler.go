package handlers

import (
	"net/http"
	"time"

	"github.com/ravigill3969/examly/backend/credits"
	"github.com/ravigill3969/examly/backend/models"
	"github.com/ravigill3969/examly/backend/utils"
)

type CreditsHandler struct {
	Service *credits.Service
}

type meProfile struct {
	FullName      string  `json:"fullName,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Credits       int     `json:"credits"`
	FreeUsed      int     `json:"freeUsed"`
	FreeExpiresAt *string `json:"freeExpiresAt"`
	AutoRecharge  bool    `json:"autoRecharge"`
	HasCard       bool    `json:"hasCard"`
}

func summarize(p *models.Profile) meProfile {
	out := meProfile{
		FullName:     p.FullName,
		Phone:        p.Phone,
		Credits:      p.Credits,
		FreeUsed:     p.FreeUsed,
		AutoRecharge: p.AutoRecharge,
		HasCard:      p.StripePaymentMethodID != "",
	}
	if p.FreeExpiresAt != nil {
		s := p.FreeExpiresAt.UTC().Format(time.RFC3339)
		out.FreeExpiresAt = &s
	}
	return out
}

func (h *CreditsHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.Service.Profile(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load profile")
		return
	}
	ent := h.Service.Snapshot(p)

	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"user":              map[string]string{"id": user.ID, "email": user.Email},
		"profile":           summarize(p),
		"entitlement":       ent,
		"hasAnyEntitlement": ent.OK,
	})
}

func (h *CreditsHandler) Entitlement(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.Service.Profile(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load entitlement")
		return
	}
	utils.RespondSuccess(w, http.StatusOK, h.Service.Snapshot(p))
}

func (h *CreditsHandler) Consume(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.Service.Consume(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to consume generation")
		return
	}

	body := map[string]any{
		"mode":        res.Mode,
		"entitlement": h.Service.Snapshot(res.Profile),
	}
	if res.Recharge != nil {
		body["autoRecharge"] = res.Recharge
	}
	utils.RespondSuccess(w, http.StatusOK, body)
}

func (h *CreditsHandler) ActivateFree(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var form models.ActivateFreeForm
	if !decodeJSON(w, r, &form) {
		return
	}

	p, err := h.Service.Activate(r.Context(), user.ID, form.FullName, form.Phone)
	if err != nil {
		respondServiceError(w, r, err, "Failed to activate free plan")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"profile":     summarize(p),
		"entitlement": h.Service.Snapshot(p),
	})
}
