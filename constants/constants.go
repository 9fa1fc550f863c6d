package constants

// Component

const (
	ChanSize                     = 20000
	StatsCaptureFrequencySeconds = 5
	TimeFormatYearSeconds        = "20060102T150405" // used for human readable file names
	TimeFormatYearSecondsRegex   = "[0-9]{4}[0-9]{2}[0-9]{2}T[0-9]{6}"
	TimeFormatYearSecondsTZ      = "20060102T150405-0700"
	DateFormat                   = "2006-01-02"
	TimeOfDayFormat              = "15:04:05"
	EmojiBang                    = "\U0001F4A5"
	EnvVarPrefix                 = "OETL" // prefix for environment variables in twelveFactorMode and runtime settings
	ServiceName                  = "openetl"
	TableInsertBatchSizeDefault  = 500
)

// Connections

const (
	ConnectionTypeStdout    = "stdout"
	ConnectionTypeAPI       = "api"
	ConnectionTypePostgres  = "postgres"
	ConnectionTypeSqlite    = "sqlite3"
	ConnectionTypeSqlServer = "sqlserver"
	ConnectionTypeSnowflake = "snowflake"
	ConnectionTypeS3        = "s3"
	ConnectionTypeCSV       = "csv"
)

// Authentication

const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeBearer = "bearer"
	AuthTypeOAuth2 = "oauth2"
)

// Pagination

const (
	PagePlaceholder       = "{page}"
	PagePlaceholderLegacy = "{records}" // older API definitions use this name for the cursor
	PageStart             = 1
	MaxPagesDefault       = 1000
)

// Tasks

const (
	TaskNameRunPipeline   = "run_pipeline"
	TaskQueueDefault      = "default"
	TaskRetryTriesDefault = 3
	TaskRetryDelayDefault = 5    // seconds
	TaskStaleAfterDefault = 3600 // seconds
)
