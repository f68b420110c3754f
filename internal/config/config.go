package config

type Config interface {
	EnvConfig
	SweepConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetAuthBaseURL() string
	GetSessionsDir() string
	GetRedisAddr() string
	GetLogFile() string
}

type mainConfig struct {
	EnvVars
	Sweep
}

func New() Config {
	return mainConfig{}
}
