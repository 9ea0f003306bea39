package ipc

import "memsweep/internal/api"

// Pass mirrors the API pass DTO for IPC callers.
type Pass = api.Pass

// Policy mirrors the API scheduler policy DTO.
type Policy = api.Policy

// DaemonStatus mirrors the API status DTO.
type DaemonStatus = api.DaemonStatus

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse wraps the daemon status.
type StatusResponse struct {
	Status DaemonStatus `json:"status"`
}

// CleanRequest starts a manual pass. An empty action list runs the
// configured manual actions.
type CleanRequest struct {
	Actions []string `json:"actions"`
	Wait    bool     `json:"wait"`
}

// CleanResponse reports the started pass. Pass is set only when the
// request waited for completion.
type CleanResponse struct {
	Started bool   `json:"started"`
	PassID  string `json:"pass_id"`
	Pass    *Pass  `json:"pass,omitempty"`
}

// ConfigureRequest changes the scheduler policy. Nil fields keep their
// current value.
type ConfigureRequest struct {
	IntervalMinutes  *int     `json:"interval_minutes,omitempty"`
	HighUsageEnabled *bool    `json:"high_usage_enabled,omitempty"`
	ThresholdPercent *int     `json:"threshold_percent,omitempty"`
	CooldownMinutes  *int     `json:"cooldown_minutes,omitempty"`
	AutoActions      []string `json:"auto_actions,omitempty"`
	ManualActions    []string `json:"manual_actions,omitempty"`
}

// ConfigureResponse returns the policy in force after the change.
type ConfigureResponse struct {
	Policy Policy `json:"policy"`
}

// HistoryRequest lists recent passes.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse carries passes newest first and lifetime totals.
type HistoryResponse struct {
	Passes []Pass            `json:"passes"`
	Totals api.HistoryTotals `json:"totals"`
}

// CapabilitiesRequest lists reclaim capabilities.
type CapabilitiesRequest struct{}

// CapabilitiesResponse names registered capabilities in execution order.
type CapabilitiesResponse struct {
	Names []string `json:"names"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges the shutdown request.
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
