package logger

// Console implements a console based logger.
type Console struct {
	Enabled          bool `toml:"enabled" mapstructure:"enabled"`
	UseConsoleWriter bool
}

// LogFile implements a file based logger, one rolling file per level group.
type LogFile struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path"    mapstructure:"path"`

	AccessLog        string `toml:"access"           mapstructure:"access"`
	AccessMaxSize    int    `toml:"accessMaxSize"    mapstructure:"accessMaxSize"`
	AccessMaxBackups int    `toml:"accessMaxBackups" mapstructure:"accessMaxBackups"`
	AccessMaxAge     int    `toml:"accessMaxAge"     mapstructure:"accessMaxAge"`

	ErrorLog        string `toml:"error"           mapstructure:"error"`
	ErrorMaxSize    int    `toml:"errorMaxSize"    mapstructure:"errorMaxSize"`
	ErrorMaxBackups int    `toml:"errorMaxBackups" mapstructure:"errorMaxBackups"`
	ErrorMaxAge     int    `toml:"errorMaxAge"     mapstructure:"errorMaxAge"`

	InfoLog        string `toml:"info"           mapstructure:"info"`
	InfoMaxSize    int    `toml:"infoMaxSize"    mapstructure:"infoMaxSize"`
	InfoMaxBackups int    `toml:"infoMaxBackups" mapstructure:"infoMaxBackups"`
	InfoMaxAge     int    `toml:"infoMaxAge"     mapstructure:"infoMaxAge"`

	TraceLog        string `toml:"trace"           mapstructure:"trace"`
	TraceMaxSize    int    `toml:"traceMaxSize"    mapstructure:"traceMaxSize"`
	TraceMaxBackups int    `toml:"traceMaxBackups" mapstructure:"traceMaxBackups"`
	TraceMaxAge     int    `toml:"traceMaxAge"     mapstructure:"traceMaxAge"`

	WarnLog        string `toml:"warn"           mapstructure:"warn"`
	WarnMaxSize    int    `toml:"warnMaxSize"    mapstructure:"warnMaxSize"`
	WarnMaxBackups int    `toml:"warnMaxBackups" mapstructure:"warnMaxBackups"`
	WarnMaxAge     int    `toml:"warnMaxAge"     mapstructure:"warnMaxAge"`
}

// Log implements the logger config.
type Log struct {
	LogLevel string // trace, debug, info, warn, error.
	LogEnv   string

	// EnableAccessLogToConsole if true the http api logs its access log to the console.
	// Does not overrule flag Console.Enabled!
	EnableAccessLogToConsole bool
	ReportCaller             bool
	DisableCheckAlive        bool // do not log /checkalive calls

	// SlowQueryThreshold marks sql statements slower than this many milliseconds as slow, 0 disables.
	SlowQueryThreshold int

	AppName     string
	ServiceName string

	// Console used mainly for docker and dev.
	Console Console

	File LogFile `toml:"file" mapstructure:"file"`
}
