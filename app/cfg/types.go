package cfg

type Cfg struct {
	// Storage configuration
	DataDir string

	// OAuth configuration
	ClientID             string
	ClientSecret         string
	Scopes               string
	RefreshMarginSeconds int

	// Application configuration
	Port             string
	NotifyConfigPath string
	APIAccessKey     string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
