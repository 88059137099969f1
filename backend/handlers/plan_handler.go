package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ravigill3969/examly/backend/llmjson"
	"github.com/ravigill3969/examly/backend/models"
	"github.com/ravigill3969/examly/backend/plans"
	"github.com/ravigill3969/examly/backend/utils"
)

type PlanHandler struct {
	Store *plans.Store
}

func (h *PlanHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	list, err := h.Store.List(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list plans")
		return
	}
	utils.RespondSuccess(w, http.StatusOK, map[string]any{"plans": list})
}

func (h *PlanHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.Store.Clear(r.Context(), user.ID); err != nil {
		respondServiceError(w, r, err, "Failed to clear plans")
		return
	}
	utils.RespondSuccess(w, http.StatusOK, map[string]bool{"cleared": true})
}

// Save stores a generated plan. The body carries either a parsed result or
// the raw model output, which is decoded leniently.
func (h *PlanHandler) Save(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var form models.SavePlanForm
	if !decodeJSON(w, r, &form) {
		return
	}

	result := form.Result
	if len(result) == 0 || string(result) == "null" {
		if strings.TrimSpace(form.Raw) == "" {
			utils.RespondValidationError(w, "", []string{"result"})
			return
		}
		var obj map[string]any
		if err := llmjson.Decode(form.Raw, &obj); err != nil {
			utils.RespondValidationError(w, "Could not read the generated plan", nil)
			return
		}
		encoded, err := json.Marshal(obj)
		if err != nil {
			utils.RespondInternal(w, err, "Failed to encode plan")
			return
		}
		result = encoded
	}

	plan, err := h.Store.Save(r.Context(), user.ID, form.Title, result)
	if err != nil {
		respondServiceError(w, r, err, "Failed to save plan")
		return
	}
	utils.RespondSuccess(w, http.StatusCreated, plan)
}

func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	plan, err := h.Store.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to load plan")
		return
	}
	utils.RespondSuccess(w, http.StatusOK, plan)
}

func (h *PlanHandler) Current(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id, err := h.Store.Current(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load current plan")
		return
	}
	if id == "" {
		utils.RespondSuccess(w, http.StatusOK, map[string]any{"plan_id": nil, "plan": nil})
		return
	}

	plan, err := h.Store.Get(r.Context(), user.ID, id)
	if errors.Is(err, plans.ErrNotFound) {
		utils.RespondSuccess(w, http.StatusOK, map[string]any{"plan_id": nil, "plan": nil})
		return
	}
	if err != nil {
		respondServiceError(w, r, err, "Failed to load current plan")
		return
	}
	utils.RespondSuccess(w, http.StatusOK, map[string]any{"plan_id": id, "plan": plan})
}

func (h *PlanHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var form models.CurrentPlanForm
	if !decodeJSON(w, r, &form) {
		return
	}

	id := ""
	if form.PlanID != nil {
		id = strings.TrimSpace(*form.PlanID)
	}
	if err := h.Store.SetCurrent(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, r, err, "Failed to set current plan")
		return
	}

	var planID any
	if id != "" {
		planID = id
	}
	utils.RespondSuccess(w, http.StatusOK, map[string]any{"plan_id": planID})
}
