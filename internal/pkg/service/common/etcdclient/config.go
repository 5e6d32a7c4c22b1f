package etcdclient

import (
	"strings"
	"time"

	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const (
	DefaultConnectionTimeout = 30 * time.Second
	DefaultKeepAliveTimeout  = 5 * time.Second
	DefaultKeepAliveInterval = 10 * time.Second
	DefaultLeaseTTLSeconds   = 15
)

type Config struct {
	Enabled           bool          `mapstructure:"enabled" configUsage:"Use etcd for cluster-wide and system-wide job card claims."`
	Endpoint          string        `mapstructure:"endpoint" configUsage:"Etcd endpoint." validate:"required_if=Enabled true"`
	Namespace         string        `mapstructure:"namespace" configUsage:"Etcd namespace." validate:"required_if=Enabled true"`
	Username          string        `mapstructure:"username" configUsage:"Etcd username."`
	Password          string        `mapstructure:"password" configUsage:"Etcd password." sensitive:"true"`
	ConnectTimeout    time.Duration `mapstructure:"connectTimeout" configUsage:"Etcd connect timeout." validate:"required"`
	KeepAliveTimeout  time.Duration `mapstructure:"keepAliveTimeout" configUsage:"Etcd keep alive timeout." validate:"required"`
	KeepAliveInterval time.Duration `mapstructure:"keepAliveInterval" configUsage:"Etcd keep alive interval." validate:"required"`
	LeaseTTLSeconds   int           `mapstructure:"leaseTTLSeconds" configUsage:"TTL of the session lease, claims of a dead node expire after the TTL." validate:"min=1"`
}

func NewConfig() Config {
	return Config{
		Enabled:           false,
		Endpoint:          "",
		Namespace:         "",
		Username:          "",
		Password:          "",
		ConnectTimeout:    DefaultConnectionTimeout,
		KeepAliveTimeout:  DefaultKeepAliveTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
		LeaseTTLSeconds:   DefaultLeaseTTLSeconds,
	}
}

func (c *Config) Normalize() {
	c.Endpoint = strings.Trim(c.Endpoint, " /")
	c.Namespace = strings.Trim(c.Namespace, " /") + "/"
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("etcd endpoint is not set")
	}
	if c.Namespace == "/" {
		return errors.New("etcd namespace is not set")
	}
	return nil
}
