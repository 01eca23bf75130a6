package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Trendyol/supra"
)

type circuitConfig struct {
	ErrorThresholdPercentage int           `mapstructure:"error_threshold_percentage"`
	ResetTimeout             time.Duration `mapstructure:"reset_timeout"`
	RollingWindow            time.Duration `mapstructure:"rolling_window"`
	BucketCount              int           `mapstructure:"bucket_count"`
	VolumeThreshold          int           `mapstructure:"volume_threshold"`
	Timeout                  time.Duration `mapstructure:"timeout"`
}

type transportConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
}

type curlConfig struct {
	FlagHeader     string `mapstructure:"flag_header"`
	ResponseHeader string `mapstructure:"response_header"`
}

type config struct {
	LogLevel         string          `mapstructure:"log_level"`
	MetricsAddr      string          `mapstructure:"metrics_addr"`
	HTTPTimeout      time.Duration   `mapstructure:"http_timeout"`
	MaxResponseBytes int64           `mapstructure:"max_response_bytes"`
	Circuit          circuitConfig   `mapstructure:"circuit"`
	Transport        transportConfig `mapstructure:"transport"`
	Curl             curlConfig      `mapstructure:"curl"`
}

func setDefaults(v *viper.Viper) {
	circuit := supra.DefaultCircuitConfig()
	transport := supra.DefaultTransportConfig()

	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("max_response_bytes", supra.DefaultMaxResponseBytes)

	v.SetDefault("circuit.error_threshold_percentage", circuit.ErrorThresholdPercentage)
	v.SetDefault("circuit.reset_timeout", circuit.ResetTimeout)
	v.SetDefault("circuit.rolling_window", circuit.RollingWindowDuration)
	v.SetDefault("circuit.bucket_count", circuit.BucketCount)
	v.SetDefault("circuit.volume_threshold", circuit.VolumeThreshold)
	v.SetDefault("circuit.timeout", 0)

	v.SetDefault("transport.max_idle_conns", transport.MaxIdleConns)
	v.SetDefault("transport.max_idle_conns_per_host", transport.MaxIdleConnsPerHost)
	v.SetDefault("transport.max_conns_per_host", transport.MaxConnsPerHost)
	v.SetDefault("transport.idle_conn_timeout", transport.IdleConnTimeout)
	v.SetDefault("transport.keep_alive", transport.KeepAlive)
	v.SetDefault("transport.dial_timeout", transport.DialTimeout)
	v.SetDefault("transport.tls_handshake_timeout", transport.TLSHandshakeTimeout)

	v.SetDefault("curl.flag_header", "x-supra-show-curl")
	v.SetDefault("curl.response_header", "x-supra-curl")
}

// loadConfig reads defaults, then the optional config file, then SUPRA_*
// environment variables.
func loadConfig(v *viper.Viper, path string) (*config, error) {
	setDefaults(v)
	v.SetEnvPrefix("SUPRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *config) clientOptions(logger zerolog.Logger, metrics prometheus.Registerer, registry *supra.Registry) []supra.Option {
	options := []supra.Option{
		supra.WithRegistry(registry),
		supra.WithDefaultHTTPTimeout(c.HTTPTimeout),
		supra.WithMaxResponseBytes(c.MaxResponseBytes),
		supra.WithCircuitDefaults(supra.CircuitConfig{
			ErrorThresholdPercentage: c.Circuit.ErrorThresholdPercentage,
			ResetTimeout:             c.Circuit.ResetTimeout,
			RollingWindowDuration:    c.Circuit.RollingWindow,
			BucketCount:              c.Circuit.BucketCount,
			VolumeThreshold:          c.Circuit.VolumeThreshold,
			Timeout:                  c.Circuit.Timeout,
		}),
		supra.WithTransportConfig(supra.TransportConfig{
			MaxIdleConns:        c.Transport.MaxIdleConns,
			MaxIdleConnsPerHost: c.Transport.MaxIdleConnsPerHost,
			MaxConnsPerHost:     c.Transport.MaxConnsPerHost,
			IdleConnTimeout:     c.Transport.IdleConnTimeout,
			KeepAlive:           c.Transport.KeepAlive,
			DialTimeout:         c.Transport.DialTimeout,
			TLSHandshakeTimeout: c.Transport.TLSHandshakeTimeout,
		}),
		supra.WithMetricsRegistry(metrics),
		supra.WithLogger(supra.NewZerologLogger(logger)),
		supra.WithGlobalOptions(supra.GlobalOptions{
			FlagHeaderNameToShowCurlOnResponse: c.Curl.FlagHeader,
			ResponseHeaderNameForCurl:          c.Curl.ResponseHeader,
		}),
	}
	if logger.GetLevel() <= zerolog.DebugLevel {
		options = append(options, supra.WithDebug())
	}
	return options
}
