package contracts

// SimConfig holds configuration for the in-process simulated patch server.
type SimConfig struct {
	SampleRate   uint32 // frames per second; default 48000
	BufferFrames uint32 // frames per processing cycle; default 128
	ManualCycles bool   // when true, cycles run only via the server's Step
}

// ClientOptions defines the configuration options for a patch client.
type ClientOptions struct {
	Logger        Logger     // Logger for control-domain events and warnings.
	LogLevel      LogLevel   // Level of logging to use.
	ClientName    string     // Session name registered with the patch server.
	Driver        string     // Server backend: "sim" or "jack".
	QueueCapacity int        // Per-port queue capacity, in events.
	MaxEventBytes int        // Per-event payload limit for incoming captures.
	Sim           *SimConfig // Configuration specific to the simulated server.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger for the patch client.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the patch client.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithClientName sets the session name registered with the patch server.
func WithClientName(name string) Option {
	return func(opts *ClientOptions) {
		opts.ClientName = name
	}
}

// WithDriver selects the server backend by name.
func WithDriver(driver string) Option {
	return func(opts *ClientOptions) {
		opts.Driver = driver
	}
}

// WithQueueCapacity bounds each port's bridge queue to n events.
func WithQueueCapacity(n int) Option {
	return func(opts *ClientOptions) {
		opts.QueueCapacity = n
	}
}

// WithMaxEventBytes bounds the payload size an incoming queue slot can hold.
func WithMaxEventBytes(n int) Option {
	return func(opts *ClientOptions) {
		opts.MaxEventBytes = n
	}
}

// WithSimConfig sets the simulated-server configuration.
func WithSimConfig(cfg SimConfig) Option {
	return func(opts *ClientOptions) {
		opts.Sim = &cfg
	}
}
