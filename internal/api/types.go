package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Failure names a capability that failed during a pass.
type Failure struct {
	Capability string `json:"capability"`
	Error      string `json:"error"`
}

// Pass describes a cleaning pass in a transport-friendly format.
type Pass struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	StartedAt   string    `json:"startedAt,omitempty"`
	DurationMS  int64     `json:"durationMs"`
	BytesBefore int64     `json:"bytesBefore"`
	BytesAfter  int64     `json:"bytesAfter"`
	FreedBytes  int64     `json:"freedBytes"`
	Actions     []string  `json:"actions"`
	Failures    []Failure `json:"failures,omitempty"`
	SampleError string    `json:"sampleError,omitempty"`
}

// Policy mirrors the scheduler policy.
type Policy struct {
	IntervalMinutes  int      `json:"intervalMinutes"`
	HighUsageEnabled bool     `json:"highUsageEnabled"`
	ThresholdPercent int      `json:"thresholdPercent"`
	CooldownMinutes  int      `json:"cooldownMinutes"`
	AutoActions      []string `json:"autoActions"`
	ManualActions    []string `json:"manualActions"`
}

// MemoryStatus is the latest memory sample.
type MemoryStatus struct {
	TotalBytes     uint64 `json:"totalBytes"`
	AvailableBytes uint64 `json:"availableBytes"`
	UsedBytes      uint64 `json:"usedBytes"`
	LoadPercent    int    `json:"loadPercent"`
	SampledAt      string `json:"sampledAt,omitempty"`
	Error          string `json:"error,omitempty"`
}

// SchedulerStatus summarises trigger state.
type SchedulerStatus struct {
	Policy             Policy `json:"policy"`
	IntervalMinutes    int    `json:"intervalMinutes"`
	PassInProgress     bool   `json:"passInProgress"`
	LastThresholdClean string `json:"lastThresholdClean,omitempty"`
	LastPass           *Pass  `json:"lastPass,omitempty"`
}

// HistoryTotals aggregates recorded passes.
type HistoryTotals struct {
	Passes     int    `json:"passes"`
	FreedBytes int64  `json:"freedBytes"`
	Failures   int    `json:"failures"`
	Since      string `json:"since,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running            bool            `json:"running"`
	PID                int             `json:"pid"`
	Role               string          `json:"role"`
	Locked             bool            `json:"locked"`
	StartedAt          string          `json:"startedAt,omitempty"`
	Memory             MemoryStatus    `json:"memory"`
	Scheduler          SchedulerStatus `json:"scheduler"`
	Capabilities       []string        `json:"capabilities"`
	ForegroundRequests int64           `json:"foregroundRequests"`
	History            *HistoryTotals  `json:"history,omitempty"`
	LockPath           string          `json:"lockPath"`
	HistoryPath        string          `json:"historyPath,omitempty"`
}
