// Package config contains the configuration of a processing plant node.
package config

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"github.com/keboola/processing-plant/internal/pkg/service/common/etcdclient"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	validatorPkg "github.com/keboola/processing-plant/internal/pkg/validator"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

type Config struct {
	NodeID      string            `mapstructure:"nodeId" configUsage:"Unique ID of the node in the cluster." validate:"required"`
	ClusterName string            `mapstructure:"clusterName" configUsage:"Name of the cluster, it is a part of the cluster-scope claim keys." validate:"required"`
	DebugLog    bool              `mapstructure:"debug" configUsage:"Enable debug log level."`
	LogFormat   string            `mapstructure:"logFormat" configUsage:"Log format, \"json\" or \"console\"." validate:"oneof=json console"`
	Watchdog    WatchdogConfig    `mapstructure:"watchdog"`
	Cluster     ClusterConfig     `mapstructure:"cluster"`
	Etcd        etcdclient.Config `mapstructure:"etcd"`
	Topology    TopologyConfig    `mapstructure:"topology"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type WatchdogConfig struct {
	Enabled           bool          `mapstructure:"enabled" configUsage:"Enable the periodic reconciliation of the node caches."`
	InitialDelay      time.Duration `mapstructure:"initialDelay" configUsage:"Delay before the first watchdog run." validate:"minDuration=0s,maxDuration=1h"`
	Period            time.Duration `mapstructure:"period" configUsage:"Interval between watchdog runs." validate:"minDuration=100ms,maxDuration=1h"`
	ActivityRetention time.Duration `mapstructure:"activityRetention" configUsage:"Episode activity older than the retention is purged." validate:"minDuration=1m,maxDuration=720h"`
}

type ClusterConfig struct {
	Nodes []string `mapstructure:"nodes" configUsage:"IDs of all nodes sharing the episode finalisation, the local node is always included."`
}

type TopologyConfig struct {
	CacheTTL time.Duration `mapstructure:"cacheTTL" configUsage:"How long a resolved worker configuration is cached." validate:"minDuration=0s,maxDuration=24h"`
	// Workers can be defined only in the config file.
	Workers []WorkerEntry `mapstructure:"workers" validate:"dive"`
}

type WorkerEntry struct {
	ID                 model.ComponentID `mapstructure:"id" validate:"required"`
	model.WorkerConfig `mapstructure:",squash"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen" configUsage:"Listen address of the Prometheus metrics endpoint, empty disables it." validate:"omitempty,hostname_port"`
}

func NewConfig() Config {
	return Config{
		NodeID:      "",
		ClusterName: "default",
		DebugLog:    false,
		LogFormat:   LogFormatJSON,
		Watchdog: WatchdogConfig{
			Enabled:           true,
			InitialDelay:      10 * time.Second,
			Period:            10 * time.Second,
			ActivityRetention: 24 * time.Hour,
		},
		Etcd: etcdclient.NewConfig(),
		Topology: TopologyConfig{
			CacheTTL: time.Minute,
		},
		Metrics: MetricsConfig{
			Listen: "0.0.0.0:9000",
		},
	}
}

// WorkerConfigs returns the static topology inventory.
func (c Config) WorkerConfigs() map[model.ComponentID]model.WorkerConfig {
	out := make(map[model.ComponentID]model.WorkerConfig, len(c.Topology.Workers))
	for _, w := range c.Topology.Workers {
		out[w.ID] = w.WorkerConfig
	}
	return out
}

// Normalize trims values, the local node is always a cluster member.
func (c *Config) Normalize() {
	if c.Etcd.Enabled {
		c.Etcd.Normalize()
	}
	for _, node := range c.Cluster.Nodes {
		if node == c.NodeID {
			return
		}
	}
	if c.NodeID != "" {
		c.Cluster.Nodes = append(c.Cluster.Nodes, c.NodeID)
	}
}

func (c Config) Validate(ctx context.Context) error {
	return validatorPkg.New(durationRules()...).Validate(ctx, c)
}

func durationRules() []validatorPkg.Rule {
	return []validatorPkg.Rule{
		{
			Tag: "minDuration",
			Func: func(_ context.Context, fl validator.FieldLevel) bool {
				limit, ok := durationParam(fl)
				return ok && time.Duration(fl.Field().Int()) >= limit
			},
			ErrorMsg: "{0} must be {1} or greater",
		},
		{
			Tag: "maxDuration",
			Func: func(_ context.Context, fl validator.FieldLevel) bool {
				limit, ok := durationParam(fl)
				return ok && time.Duration(fl.Field().Int()) <= limit
			},
			ErrorMsg: "{0} must be {1} or less",
		},
	}
}

func durationParam(fl validator.FieldLevel) (time.Duration, bool) {
	// Plain number is interpreted as nanoseconds
	d, err := cast.ToDurationE(fl.Param())
	return d, err == nil
}
