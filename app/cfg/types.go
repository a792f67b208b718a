package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// HTTP server configuration
	Port          string
	SessionSecret string

	// Mail relay configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPUseTLS   bool

	// Summarizer configuration (CLI mode reads the key/model from the
	// environment; dashboard users store their own encrypted key)
	OpenAIAPIKey string
	OpenAIModel  string

	// Delivery configuration
	RecipientEmail string

	// At-rest encryption key for stored LLM credentials (base64, 32 bytes)
	EncryptKey string

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string

	// Active subcommand ("add-channel", "run-once", "run", "serve")
	Command string

	AddChannel AddChannelOpts
	Run        RunOpts
}

// AddChannelOpts carries the flags of the add-channel subcommand.
type AddChannelOpts struct {
	Channel string `long:"channel" required:"true" description:"Channel URL, @handle, or UC... channel ID"`
	Email   string `long:"email" required:"true" description:"Recipient email address for this channel"`
}

// RunOpts carries the flags of the run subcommand.
type RunOpts struct {
	Interval int `long:"interval" env:"POLL_INTERVAL_MINUTES" default:"15" description:"Poll interval in minutes"`
}
