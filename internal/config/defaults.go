package config

const (
	defaultStateDir             = "~/.local/share/memsweep"
	defaultProcRoot             = "/proc"
	defaultCgroupRoot           = "/sys/fs/cgroup"
	defaultTrashDir             = "~/.local/share/Trash"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultHistoryRetentionDays = 90
	defaultThresholdPercent     = 70
	defaultCooldownMinutes      = 10
	defaultSampleIntervalMS     = 500
	defaultTempMinAgeMinutes    = 5
	defaultNotifyRequestTimeout = 10
)

// Capability names understood by the reclaim registry. They are duplicated
// here so defaults can be expressed without importing the reclaim package.
const (
	ActionFlushProcessWorkingSets = "flush-process-working-sets"
	ActionFlushSystemWorkingSet   = "flush-system-working-set"
	ActionFlushModifiedPages      = "flush-modified-pages"
	ActionFlushStandbyList        = "flush-standby-list"
	ActionFlushLowPriorityStandby = "flush-low-priority-standby-list"
	ActionPurgeTempFiles          = "purge-temp-files"
	ActionEmptyRecycleBin         = "empty-recycle-bin"
)

// Upper bounds for minute-valued scheduler settings. Both are one week.
const (
	MaxIntervalMinutes = 7 * 24 * 60
	MaxCooldownMinutes = 7 * 24 * 60
)

// IntervalOptions lists the interval presets offered by `memsweep interval --next`.
var IntervalOptions = []int{0, 5, 10, 15, 30, 45, 60, 120, 180}

func defaultAutoActions() []string {
	return []string{
		ActionFlushProcessWorkingSets,
		ActionFlushSystemWorkingSet,
		ActionFlushModifiedPages,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			RuntimeDir: defaultRuntimeDir(),
		},
		Scheduler: Scheduler{
			IntervalMinutes:  0,
			HighUsageEnabled: false,
			ThresholdPercent: defaultThresholdPercent,
			CooldownMinutes:  defaultCooldownMinutes,
			SampleIntervalMS: defaultSampleIntervalMS,
			AutoActions:      defaultAutoActions(),
			ManualActions:    defaultAutoActions(),
		},
		Reclaim: Reclaim{
			ProcRoot:          defaultProcRoot,
			CgroupRoot:        defaultCgroupRoot,
			TempMinAgeMinutes: defaultTempMinAgeMinutes,
			TrashDir:          defaultTrashDir,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Clean:          true,
			Foreground:     false,
		},
		History: History{
			Enabled:       true,
			RetentionDays: defaultHistoryRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
