package config

const (
	defaultInboxDir             = "~/.local/share/vitae/inbox"
	defaultOutputDir            = "~/.local/share/vitae/output"
	defaultLogDir               = "~/.local/share/vitae/logs"
	defaultAPIBind              = "127.0.0.1:7419"
	defaultQueueCapacity        = 1000
	defaultMaxConcurrent        = 4
	defaultMaxRetries           = 3
	defaultRetentionHours       = 24
	defaultRetryMaxAttempts     = 3
	defaultRetryBaseDelayMS     = 500
	defaultRetryMaxDelayMS      = 30000
	defaultRetryStrategy        = "exponential"
	defaultFailureThreshold     = 5
	defaultRecoverySeconds      = 60
	defaultSuccessThreshold     = 2
	defaultHalfOpenMaxCalls     = 3
	defaultMinQualityScore      = 0.70
	defaultAutoApproveThreshold = 0.90
	defaultEscalationThreshold  = 0.40
	defaultReviewerCapacity     = 5
	defaultWorkers              = 4
	defaultDequeueTimeout       = 5
	defaultErrorRetryInterval   = 5
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultNotifyTimeout        = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:  defaultInboxDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Queue: Queue{
			Capacity:       defaultQueueCapacity,
			MaxConcurrent:  defaultMaxConcurrent,
			MaxRetries:     defaultMaxRetries,
			RetentionHours: defaultRetentionHours,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
			Strategy:    defaultRetryStrategy,
			Jitter:      true,
		},
		Breaker: Breaker{
			FailureThreshold: defaultFailureThreshold,
			RecoverySeconds:  defaultRecoverySeconds,
			SuccessThreshold: defaultSuccessThreshold,
			HalfOpenMaxCalls: defaultHalfOpenMaxCalls,
		},
		Review: Review{
			MinQualityScore:      defaultMinQualityScore,
			AutoApproveThreshold: defaultAutoApproveThreshold,
			EscalationThreshold:  defaultEscalationThreshold,
			ReviewerCapacity:     defaultReviewerCapacity,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			DequeueTimeout:     defaultDequeueTimeout,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Reviews:        true,
			Queue:          true,
			Errors:         true,
		},
	}
}
