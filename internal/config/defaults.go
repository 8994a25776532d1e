package config

const (
	defaultDataDir                  = "~/.local/share/petlabel/data"
	defaultLogDir                   = "~/.local/share/petlabel/logs"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultMaxAnnotationTimeSeconds = 120
	defaultMaxReworkTimeSeconds     = 120
	defaultPageSize                 = 20
	defaultNotifyRequestTimeout     = 10

	// PolicyItemClaim is the canonical per-item exclusive claim policy.
	PolicyItemClaim = "item_claim"
	// PolicyCategoryQueue is the legacy per-category remaining-work policy.
	PolicyCategoryQueue = "category_queue"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Labeling: Labeling{
			MaxAnnotationTimeSeconds: defaultMaxAnnotationTimeSeconds,
			MaxReworkTimeSeconds:     defaultMaxReworkTimeSeconds,
			AllocationPolicy:         PolicyItemClaim,
			PageSize:                 defaultPageSize,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Review:         true,
			EditRequests:   true,
			Rework:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
