package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config 聚合客户端与本地伴随服务的配置项。
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Session SessionConfig
	Blob    BlobConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	blob, err := loadBlobConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Backend: backend,
		Session: session,
		Blob:    blob,
		Log:     loadLogConfig(),
	}, nil
}

// ServerConfig 描述伴随 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Ask routing policies.
const (
	// RoutingSplit sends file-less asks to /ask and file asks to /ask_file.
	RoutingSplit = "split"
	// RoutingFile sends every ask to /ask_file.
	RoutingFile = "file"
)

// BackendConfig 描述 Jarvik 后端的访问方式。
type BackendConfig struct {
	// BaseURL is the local ("same origin") backend.
	BaseURL string
	// DevlabConfigPath is the resource fetched once at startup for the devlab URL.
	DevlabConfigPath string
	// DiscoverDevlab disables the startup lookup when false.
	DiscoverDevlab bool
	AskRouting     string
	// Timeout of zero means requests never time out.
	Timeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	baseURL := strings.TrimRight(getEnvOrDefault("JARVIK_BACKEND_URL", "http://127.0.0.1:8010"), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return BackendConfig{}, fmt.Errorf("invalid JARVIK_BACKEND_URL value %q: scheme must be http or https", baseURL)
	}

	configPath := getEnvOrDefault("JARVIK_DEVLAB_CONFIG", "/devlab.json")
	if !strings.HasPrefix(configPath, "/") {
		configPath = "/" + configPath
	}

	routing := strings.ToLower(getEnvOrDefault("JARVIK_ASK_ROUTING", RoutingSplit))
	if routing != RoutingSplit && routing != RoutingFile {
		return BackendConfig{}, fmt.Errorf("invalid JARVIK_ASK_ROUTING value %q: want %q or %q", routing, RoutingSplit, RoutingFile)
	}

	discover, err := parseBoolEnv("JARVIK_DISCOVER_DEVLAB", true)
	if err != nil {
		return BackendConfig{}, err
	}

	timeout, err := parseOptionalDurationEnv("JARVIK_REQUEST_TIMEOUT")
	if err != nil {
		return BackendConfig{}, err
	}

	cfg := BackendConfig{
		BaseURL:          baseURL,
		DevlabConfigPath: configPath,
		DiscoverDevlab:   discover,
		AskRouting:       routing,
	}
	if timeout != nil {
		cfg.Timeout = *timeout
	}
	return cfg, nil
}

// SessionConfig 描述会话凭证的持久化位置。
type SessionConfig struct {
	File string
}

func loadSessionConfig() (SessionConfig, error) {
	if file := strings.TrimSpace(os.Getenv("JARVIK_SESSION_FILE")); file != "" {
		return SessionConfig{File: file}, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return SessionConfig{}, fmt.Errorf("resolve user config dir: %w", err)
	}
	return SessionConfig{File: filepath.Join(dir, "jarvik", "session.json")}, nil
}

// BlobConfig 控制下载引用的生命周期。
type BlobConfig struct {
	// TTL of zero keeps references until they are revoked.
	TTL time.Duration
}

func loadBlobConfig() (BlobConfig, error) {
	ttl, err := parseOptionalDurationEnv("JARVIK_BLOB_TTL")
	if err != nil {
		return BlobConfig{}, err
	}
	if ttl == nil {
		return BlobConfig{}, nil
	}
	if *ttl < 0 {
		return BlobConfig{}, fmt.Errorf("invalid JARVIK_BLOB_TTL value %q: must not be negative", ttl.String())
	}
	return BlobConfig{TTL: *ttl}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	FilePath   string
	Production bool
	Level      string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		FilePath:   strings.TrimSpace(os.Getenv("LOG_FILE_PATH")),
		Production: strings.EqualFold(getEnvOrDefault("GO_ENV", "development"), "production"),
		Level:      getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	// 纯数字按秒处理。
	if seconds, err := strconv.Atoi(value); err == nil {
		d := time.Duration(seconds) * time.Second
		return &d, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
