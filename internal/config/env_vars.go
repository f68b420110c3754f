package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	authBaseURLVar = "AUTH_BASE_URL"
	sessionsDirVar = "SESSIONS_DIR"
	redisAddrVar   = "REDIS_ADDR"
	logFileVar     = "LOG_FILE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" || port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Portal Sessions")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetAuthBaseURL returns the base URL of the authentication service the
// session coordinator delegates credential checks to.
func (EnvVars) GetAuthBaseURL() string {
	return GetEnv(authBaseURLVar, "http://localhost:9090")
}

func (EnvVars) GetSessionsDir() string {
	return GetEnv(sessionsDirVar, "./data")
}

// GetRedisAddr returns the Redis address for the shared tab store. Empty
// selects the file-backed store instead.
func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}

// GetLogFile returns the rotating log file path. Empty logs to stdout only.
func (EnvVars) GetLogFile() string {
	return GetEnv(logFileVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
