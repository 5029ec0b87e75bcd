/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package engine

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Protocol identifies which protocol variant a server speaks, per the
// enumerated "protocol" configuration option (spec section 6).
type Protocol string

const (
	ProtocolRawTCP        Protocol = "raw-tcp"
	ProtocolHTTP          Protocol = "http"
	ProtocolJSONRPCOverTCP  Protocol = "jsonrpc-tcp"
	ProtocolJSONRPCOverHTTP Protocol = "jsonrpc-http"
	ProtocolREST          Protocol = "rest"
)

// LogsFormat identifies the heartbeat rendering, per "logs_format".
type LogsFormat string

const (
	LogsFormatHuman LogsFormat = "human"
	LogsFormatJSON  LogsFormat = "json"
)

// Config is the server's static, startup-only configuration, enumerated
// in spec section 6. It is validated once, at construction, the way
// httpserver.ServerConfig is validated in the ambient stack this engine
// is modeled on.
type Config struct {
	Hostname string `mapstructure:"hostname" json:"hostname" yaml:"hostname" toml:"hostname" validate:"required,ip|hostname"`
	Port     uint16 `mapstructure:"port" json:"port" yaml:"port" toml:"port" validate:"required"`

	QueueDepth    int `mapstructure:"queue_depth" json:"queue_depth" yaml:"queue_depth" toml:"queue_depth" validate:"gt=0"`
	MaxCallbacks  int `mapstructure:"max_callbacks" json:"max_callbacks" yaml:"max_callbacks" toml:"max_callbacks" validate:"gt=0"`
	MaxThreads    int `mapstructure:"max_threads" json:"max_threads" yaml:"max_threads" toml:"max_threads" validate:"gt=0"`

	MaxConcurrentConnections int `mapstructure:"max_concurrent_connections" json:"max_concurrent_connections" yaml:"max_concurrent_connections" toml:"max_concurrent_connections" validate:"gt=0"`

	MaxLifetimeMicroSeconds int64 `mapstructure:"max_lifetime_micro_seconds" json:"max_lifetime_micro_seconds" yaml:"max_lifetime_micro_seconds" toml:"max_lifetime_micro_seconds"`
	MaxInactiveDuration     time.Duration `mapstructure:"max_inactive_duration_ns" json:"max_inactive_duration_ns" yaml:"max_inactive_duration_ns" toml:"max_inactive_duration_ns" validate:"gt=0"`
	MaxLifetimeExchanges    int `mapstructure:"max_lifetime_exchanges" json:"max_lifetime_exchanges" yaml:"max_lifetime_exchanges" toml:"max_lifetime_exchanges"`

	SleepGrowthFactor float64 `mapstructure:"sleep_growth_factor" json:"sleep_growth_factor" yaml:"sleep_growth_factor" toml:"sleep_growth_factor" validate:"gt=1"`
	BaseWakeup        time.Duration `mapstructure:"base_wakeup_ns" json:"base_wakeup_ns" yaml:"base_wakeup_ns" toml:"base_wakeup_ns" validate:"gt=0"`

	Protocol Protocol `mapstructure:"protocol" json:"protocol" yaml:"protocol" toml:"protocol" validate:"required,oneof=raw-tcp http jsonrpc-tcp jsonrpc-http rest"`

	LogsFileDescriptor int        `mapstructure:"logs_file_descriptor" json:"logs_file_descriptor" yaml:"logs_file_descriptor" toml:"logs_file_descriptor"`
	LogsFormat         LogsFormat `mapstructure:"logs_format" json:"logs_format" yaml:"logs_format" toml:"logs_format" validate:"omitempty,oneof=human json"`

	DefaultFrequencySecs int `mapstructure:"default_frequency_secs" json:"default_frequency_secs" yaml:"default_frequency_secs" toml:"default_frequency_secs" validate:"gt=0"`

	TLSCertFile string `mapstructure:"tls_cert_file" json:"tls_cert_file" yaml:"tls_cert_file" toml:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file" json:"tls_key_file" yaml:"tls_key_file" toml:"tls_key_file"`
}

// Default returns a Config with every documented default applied (spec
// section 6): 0.0.0.0:8545, queue depth 4096, 128 callbacks, one thread,
// 1024 concurrent connections, human heartbeat every 5 seconds.
func Default() *Config {
	return &Config{
		Hostname:                 "0.0.0.0",
		Port:                     8545,
		QueueDepth:               4096,
		MaxCallbacks:             128,
		MaxThreads:               1,
		MaxConcurrentConnections: 1024,
		MaxInactiveDuration:      30 * time.Second,
		MaxLifetimeExchanges:     0,
		SleepGrowthFactor:        2.0,
		BaseWakeup:               time.Millisecond,
		Protocol:                 ProtocolRawTCP,
		LogsFileDescriptor:       -1,
		LogsFormat:               LogsFormatHuman,
		DefaultFrequencySecs:     5,
	}
}

var validate = validator.New()

// Validate checks every struct tag constraint, returning the first
// validation failure wrapped as a liberr.Error.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return ErrorInvalidConfig.Error(err)
	}

	return nil
}
