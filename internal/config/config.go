// Package config provides configuration types and loading for clawd.
package config

// Config is the root configuration struct.
// Top-level groups: Server, Store, OpenAI, Google, Slack, Kafka, Assistant.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Store     StoreConfig     `json:"store"`
	OpenAI    OpenAIConfig    `json:"openai"`
	Google    GoogleConfig    `json:"google"`
	Slack     SlackConfig     `json:"slack"`
	Kafka     KafkaConfig     `json:"kafka"`
	Assistant AssistantConfig `json:"assistant"`
}

// ServerConfig groups HTTP transport settings.
type ServerConfig struct {
	Addr           string   `json:"addr" envconfig:"ADDR"`
	PublicBaseURL  string   `json:"publicBaseUrl" envconfig:"PUBLIC_BASE_URL"`
	AllowedOrigins []string `json:"allowedOrigins" envconfig:"ALLOWED_ORIGINS"`
	StateSecret    string   `json:"stateSecret" envconfig:"STATE_SECRET"`
}

// StoreConfig selects the credential store backend.
// Postgres is used when a DSN is set; otherwise a local sqlite file.
type StoreConfig struct {
	SQLitePath  string `json:"sqlitePath" envconfig:"SQLITE_PATH"`
	PostgresDSN string `json:"postgresDsn" envconfig:"POSTGRES_DSN"`
}

// OpenAIConfig contains settings for the LLM JSON-completion client.
type OpenAIConfig struct {
	APIKey      string  `json:"apiKey" envconfig:"API_KEY"`
	APIBase     string  `json:"apiBase,omitempty" envconfig:"API_BASE"`
	Model       string  `json:"model" envconfig:"MODEL"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// GoogleConfig contains Google OAuth app credentials.
type GoogleConfig struct {
	ClientID     string `json:"clientId" envconfig:"CLIENT_ID"`
	ClientSecret string `json:"clientSecret" envconfig:"CLIENT_SECRET"`
	RedirectURI  string `json:"redirectUri" envconfig:"REDIRECT_URI"`
}

// SlackConfig contains Slack OAuth app credentials.
type SlackConfig struct {
	ClientID     string `json:"clientId" envconfig:"CLIENT_ID"`
	ClientSecret string `json:"clientSecret" envconfig:"CLIENT_SECRET"`
	RedirectURI  string `json:"redirectUri" envconfig:"REDIRECT_URI"`
}

// KafkaConfig configures the optional run-event mirror.
// The mirror is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
}

// AssistantConfig groups handler behaviour defaults.
type AssistantConfig struct {
	Timezone         string `json:"timezone" envconfig:"TIMEZONE"`
	UTCOffset        string `json:"utcOffset" envconfig:"UTC_OFFSET"`
	DefaultTime      string `json:"defaultTime" envconfig:"DEFAULT_TIME"`
	DefaultDuration  int    `json:"defaultDurationMins" envconfig:"DEFAULT_DURATION_MINS"`
	TriageLimit      int    `json:"triageLimit" envconfig:"TRIAGE_LIMIT"`
	SlackWindowDays  int    `json:"slackWindowDays" envconfig:"SLACK_WINDOW_DAYS"`
	SignatureName    string `json:"signatureName" envconfig:"SIGNATURE_NAME"`
	WebFetchTimeoutS int    `json:"webFetchTimeoutSecs" envconfig:"WEB_FETCH_TIMEOUT_SECS"`
}
