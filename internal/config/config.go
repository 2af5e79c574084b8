// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SOLANA_BUNDLER"

type Config struct {
	RPCList      []string           `mapstructure:"rpc_list"`
	Relay        RelayConfig        `mapstructure:"relay"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Server       ServerConfig       `mapstructure:"server"`
	DebugLogging bool               `mapstructure:"debug_logging"`
	LogFile      string             `mapstructure:"log_file"`
}

// RelayConfig - параметры block engine. AuthUUID задаётся только конфигом или окружением.
type RelayConfig struct {
	BlockEngineURL    string `mapstructure:"block_engine_url"`
	AuthUUID          string `mapstructure:"auth_uuid"`
	PollIntervalMs    int    `mapstructure:"poll_interval_ms"`
	ConfirmTimeoutMs  int    `mapstructure:"confirm_timeout_ms"`
	ConfirmSignatures bool   `mapstructure:"confirm_signatures"`
}

type DistributionConfig struct {
	ChunkSize      int    `mapstructure:"chunk_size"`
	SuperChunkSize int    `mapstructure:"super_chunk_size"`
	TipLamports    uint64 `mapstructure:"tip_lamports"`
	TipEveryBundle bool   `mapstructure:"tip_every_bundle"`
}

type ServerConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

const (
	DefaultBlockEngineURL   = "https://mainnet.block-engine.jito.wtf"
	DefaultPollIntervalMs   = 1000
	DefaultConfirmTimeoutMs = 60000
	DefaultChunkSize        = 21
	DefaultSuperChunkSize   = 104
	DefaultTipLamports      = 10_000_000
	DefaultListenAddr       = ":8080"

	maxBundleTransactions = 5
)

// PollInterval возвращает интервал опроса статусов бандлов.
func (r RelayConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMs) * time.Millisecond
}

// ConfirmTimeout возвращает дедлайн ожидания результата бандла.
func (r RelayConfig) ConfirmTimeout() time.Duration {
	return time.Duration(r.ConfirmTimeoutMs) * time.Millisecond
}

// TLSEnabled сообщает, заданы ли сертификат и ключ.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// LoadConfig читает конфиг (путь может быть пустым) и применяет переменные окружения SOLANA_BUNDLER_*.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"relay.block_engine_url":        DefaultBlockEngineURL,
		"relay.poll_interval_ms":        DefaultPollIntervalMs,
		"relay.confirm_timeout_ms":      DefaultConfirmTimeoutMs,
		"relay.confirm_signatures":      false,
		"distribution.chunk_size":       DefaultChunkSize,
		"distribution.super_chunk_size": DefaultSuperChunkSize,
		"distribution.tip_lamports":     DefaultTipLamports,
		"distribution.tip_every_bundle": false,
		"server.listen_addr":            DefaultListenAddr,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if cfg.Relay.BlockEngineURL == "" {
		return errors.New("relay.block_engine_url is empty")
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if (cfg.Server.TLSCertFile == "") != (cfg.Server.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file must be set together")
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.Relay.PollIntervalMs <= 0 {
		return errors.New("invalid relay.poll_interval_ms")
	}
	if cfg.Relay.ConfirmTimeoutMs <= 0 {
		return errors.New("invalid relay.confirm_timeout_ms")
	}
	if cfg.Distribution.ChunkSize <= 0 {
		return errors.New("invalid distribution.chunk_size")
	}
	if cfg.Distribution.SuperChunkSize <= 0 {
		return errors.New("invalid distribution.super_chunk_size")
	}
	if cfg.Distribution.SuperChunkSize > cfg.Distribution.ChunkSize*maxBundleTransactions {
		return fmt.Errorf("distribution.super_chunk_size %d does not fit into %d transactions of %d transfers",
			cfg.Distribution.SuperChunkSize, maxBundleTransactions, cfg.Distribution.ChunkSize)
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envAuth := v.GetString("RELAY_AUTH_UUID"); envAuth != "" {
		cfg.Relay.AuthUUID = envAuth
	}
	if envEngine := v.GetString("RELAY_BLOCK_ENGINE_URL"); envEngine != "" {
		cfg.Relay.BlockEngineURL = envEngine
	}
	if envListen := v.GetString("SERVER_LISTEN_ADDR"); envListen != "" {
		cfg.Server.ListenAddr = envListen
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}
