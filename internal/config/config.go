package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// AppConfig 汇总运行后台控制台所需的基础配置。
type AppConfig struct {
	ListenAddr        string `env:"LISTEN_ADDR"`
	Port              string `env:"PORT" envDefault:"8080"`
	DatabasePath      string `env:"DATABASE_PATH" envDefault:"siteadmin.db"`
	SessionSecret     string `env:"SESSION_SECRET" envDefault:"siteadmin-dev-secret"`
	GinMode           string `env:"GIN_MODE" envDefault:"release"`
	APIBaseURL        string `env:"API_BASE_URL" envDefault:"http://localhost:8000/api"`
	APIToken          string `env:"API_TOKEN"`
	APITimeoutSeconds int    `env:"API_TIMEOUT" envDefault:"30"`
	SuccessBannerMS   int    `env:"BANNER_SUCCESS_TTL" envDefault:"3000"`
	ErrorBannerMS     int    `env:"BANNER_ERROR_TTL" envDefault:"0"`
	FetchErrorPolicy  string `env:"FETCH_ERROR_POLICY" envDefault:"clear"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile           string `env:"LOG_FILE"`
	SuperRootUserName string `env:"SUPER_ROOT_USER_NAME"`
	SuperRootPassword string `env:"SUPER_ROOT_PASSWORD"`
}

// Load 先尝试加载 .env（可选），再从环境变量读取配置，并为缺失项提供默认值。
func Load(files ...string) (AppConfig, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return AppConfig{}, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = "8080"
	}

	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = fmt.Sprintf(":%s", c.Port)
	}

	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.APIToken = strings.TrimSpace(c.APIToken)
	if c.APITimeoutSeconds <= 0 {
		c.APITimeoutSeconds = 30
	}
	if c.SuccessBannerMS < 0 {
		c.SuccessBannerMS = 0
	}
	if c.ErrorBannerMS < 0 {
		c.ErrorBannerMS = 0
	}

	c.FetchErrorPolicy = strings.ToLower(strings.TrimSpace(c.FetchErrorPolicy))
	if c.FetchErrorPolicy != "keep" {
		c.FetchErrorPolicy = "clear"
	}

	c.SuperRootUserName = strings.TrimSpace(c.SuperRootUserName)
	c.SuperRootPassword = strings.TrimSpace(c.SuperRootPassword)
}

// APITimeout 返回访问远端接口的超时时间。
func (c AppConfig) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// SuccessBannerTTL 成功提示自动消失的间隔。
func (c AppConfig) SuccessBannerTTL() time.Duration {
	return time.Duration(c.SuccessBannerMS) * time.Millisecond
}

// ErrorBannerTTL 错误提示自动消失的间隔，0 表示保留到下一次操作。
func (c AppConfig) ErrorBannerTTL() time.Duration {
	return time.Duration(c.ErrorBannerMS) * time.Millisecond
}

// KeepStaleOnFetchError 报告拉取失败时是否保留旧数据。
func (c AppConfig) KeepStaleOnFetchError() bool {
	return c.FetchErrorPolicy == "keep"
}
