package config

type Config interface {
	EnvConfig
	StoreConfig
	RouteConfig
	HTTPConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
}

type mainConfig struct {
	EnvVars
	Store
	Routes
	HTTP
}

func New() Config {
	return mainConfig{}
}
