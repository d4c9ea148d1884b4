package config

const (
	// InstanceTypeMaster marks the control-plane host.
	InstanceTypeMaster = "MASTER"
	// InstanceTypeSlave marks an execution-only host.
	InstanceTypeSlave = "SLAVE"
)

const (
	defaultDataDir                  = "~/.local/share/encodefleet"
	defaultLogDir                   = "~/.local/share/encodefleet/logs"
	defaultBlobDir                  = "~/.local/share/encodefleet/blobs"
	defaultAPIBind                  = "127.0.0.1:7490"
	defaultAPIVersion               = "1.0.0"
	defaultAPIEnv                   = "production"
	defaultSessionTTL               = 86400
	defaultAuthRatePerMinute        = 10
	defaultAuthBurst                = 5
	defaultWorkersPerCPUCore        = 1
	defaultWorkersMax               = 4
	defaultSchedulerPollInterval    = 2
	defaultSchedulerErrorRetry      = 10
	defaultJobTimeout               = 6 * 3600
	defaultHeartbeatInterval        = 15
	defaultHeartbeatTimeout         = 120
	defaultExecutorBinary           = "ffmpeg"
	defaultProbeBinary              = "ffprobe"
	defaultNotifyPollInterval       = 5
	defaultNotifyBatchSize          = 20
	defaultNotifyClaimLease         = 60
	defaultNotifyRequestTimeout     = 10
	defaultNotifyTryMax             = 5
	defaultNotifyBackoff            = BackoffExponential
	defaultNotifyBackoffBaseSeconds = 30
	defaultNotifyBackoffMaxSeconds  = 3600
	defaultNotifyRedisChannel       = "encodefleet.notifications"
	defaultBlobTimeout              = 30
	defaultStatsInterval            = 60
	defaultStatsRetentionDays       = 7
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
)

// Backoff strategies accepted by notifications.backoff.
const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
	BackoffFixed       = "fixed"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			BlobDir: defaultBlobDir,
		},
		API: API{
			Bind:              defaultAPIBind,
			SessionTTL:        defaultSessionTTL,
			AuthRatePerMinute: defaultAuthRatePerMinute,
			AuthBurst:         defaultAuthBurst,
			Version:           defaultAPIVersion,
			Env:               defaultAPIEnv,
		},
		Instance: Instance{
			Type:              InstanceTypeMaster,
			WorkersPerCPUCore: defaultWorkersPerCPUCore,
			WorkersMax:        defaultWorkersMax,
			ExecuteJobs:       true,
		},
		Scheduler: Scheduler{
			PollInterval:       defaultSchedulerPollInterval,
			ErrorRetryInterval: defaultSchedulerErrorRetry,
			JobTimeout:         defaultJobTimeout,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Executor: Executor{
			Binary:      defaultExecutorBinary,
			ProbeBinary: defaultProbeBinary,
		},
		Notifications: Notifications{
			Enabled:              true,
			PollInterval:         defaultNotifyPollInterval,
			BatchSize:            defaultNotifyBatchSize,
			ClaimLease:           defaultNotifyClaimLease,
			RequestTimeout:       defaultNotifyRequestTimeout,
			TryMax:               defaultNotifyTryMax,
			Backoff:              defaultNotifyBackoff,
			BackoffBaseSeconds:   defaultNotifyBackoffBaseSeconds,
			BackoffMaxSeconds:    defaultNotifyBackoffMaxSeconds,
			ResetTryCountOnRetry: true,
			OnSuccess:            true,
			OnFailure:            true,
			RedisChannel:         defaultNotifyRedisChannel,
		},
		Blob: Blob{
			Timeout: defaultBlobTimeout,
		},
		Stats: Stats{
			Interval:      defaultStatsInterval,
			RetentionDays: defaultStatsRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
