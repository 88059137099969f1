package models

import (
	"encoding/json"
	"time"
)

type Plan struct {
	ID         string          `json:"id"`
	UserID     string          `json:"-"`
	Title      string          `json:"title"`
	Result     json.RawMessage `json:"result,omitempty"`
	ArchiveKey string          `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}

type PlanSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type SavePlanForm struct {
	Title  string          `json:"title"`
	Result json.RawMessage `json:"result"`
	Raw    string          `json:"raw"`
}

type CurrentPlanForm struct {
	PlanID *string `json:"plan_id"`
}
