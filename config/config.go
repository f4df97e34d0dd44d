package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Level    LevelConfig    `mapstructure:"level"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Item     ItemConfig     `mapstructure:"item"`
	Region   RegionConfig   `mapstructure:"region"`
	Pickup   PickupConfig   `mapstructure:"pickup"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
	// TravelTTL is how long cached region travel matrices live.
	TravelTTL time.Duration `mapstructure:"travel_ttl"`
}

type SecurityConfig struct {
	// HostSecret signs the tokens game hosts present to the host API.
	HostSecret     string        `mapstructure:"host_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// AdminAllowIPs lists addresses or CIDR prefixes allowed to reach the
	// admin API; empty allows all.
	AdminAllowIPs []string `mapstructure:"admin_allow_ips"`
}

type LevelConfig struct {
	DataDir  string   `mapstructure:"data_dir"`
	Autoload []string `mapstructure:"autoload"`
	// RunSpeed is the ground speed used by the grid travel oracle.
	RunSpeed float64 `mapstructure:"run_speed"`
	// StatsFlush is how often combatant statistics are persisted.
	StatsFlush time.Duration `mapstructure:"stats_flush"`
}

type RulesConfig struct {
	QuadFactor        float64 `mapstructure:"quad_factor"`
	WeaponRespawn     float64 `mapstructure:"weapon_respawn"`
	TeamWeaponRespawn float64 `mapstructure:"team_weapon_respawn"`
}

type ItemConfig struct {
	ClusterRange   float64 `mapstructure:"cluster_range"`
	MaxItems       int     `mapstructure:"max_items"`
	MaxStatic      int     `mapstructure:"max_static_clusters"`
	MaxMobile      int     `mapstructure:"max_mobile_clusters"`
	MaxDropped     int     `mapstructure:"max_dropped"`
	SuspendedTrace float64 `mapstructure:"suspended_trace"`
}

type RegionConfig struct {
	MaxRegions         int     `mapstructure:"max_regions"`
	MaxLocalNeighbors  int     `mapstructure:"max_local_neighbors"`
	MaxDynamic         int     `mapstructure:"max_dynamic"`
	TrafficNeighbors   int     `mapstructure:"traffic_neighbors"`
	PathNeighborWeight float64 `mapstructure:"path_neighbor_weight"`
	ViewHeight         float64 `mapstructure:"view_height"`
	TrafficSeedSeconds float64 `mapstructure:"traffic_seed_seconds"`
}

type PickupConfig struct {
	MaxChain            int     `mapstructure:"max_chain"`
	MaxOptions          int     `mapstructure:"max_options"`
	AutopickupTime      float64 `mapstructure:"autopickup_time"`
	AutopickupUtility   float64 `mapstructure:"autopickup_utility"`
	PredictTimeMin      float64 `mapstructure:"predict_time_min"`
	ChangePenaltyTime   float64 `mapstructure:"change_penalty_time"`
	ChangePenaltyFactor float64 `mapstructure:"change_penalty_factor"`
	RecomputeDelay      float64 `mapstructure:"recompute_delay"`
	RecomputeDamageDrop float64 `mapstructure:"recompute_damage_drop"`
	ValuationHorizon    float64 `mapstructure:"valuation_horizon"`
	// DefaultSkill is used for combatants whose host sends no skill.
	DefaultSkill float64 `mapstructure:"default_skill"`
}

type JournalConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	QueueSize     int           `mapstructure:"queue_size"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/arenabot.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("cache.travel_ttl", "168h")
	v.SetDefault("security.host_secret", "")
	v.SetDefault("security.token_ttl", "720h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("level.data_dir", "./data/levels")
	v.SetDefault("level.run_speed", 320)
	v.SetDefault("level.stats_flush", "1m")
	v.SetDefault("rules.quad_factor", 3)
	v.SetDefault("rules.weapon_respawn", 5)
	v.SetDefault("rules.team_weapon_respawn", 30)
	v.SetDefault("item.cluster_range", 160)
	v.SetDefault("item.max_items", 256)
	v.SetDefault("item.max_static_clusters", 128)
	v.SetDefault("item.max_mobile_clusters", 32)
	v.SetDefault("item.max_dropped", 48)
	v.SetDefault("item.suspended_trace", 64)
	v.SetDefault("region.max_regions", 128)
	v.SetDefault("region.max_local_neighbors", 12)
	v.SetDefault("region.max_dynamic", 3)
	v.SetDefault("region.traffic_neighbors", 4)
	v.SetDefault("region.path_neighbor_weight", .35)
	v.SetDefault("region.view_height", 26)
	v.SetDefault("region.traffic_seed_seconds", 5)
	v.SetDefault("pickup.max_chain", 3)
	v.SetDefault("pickup.max_options", 28)
	v.SetDefault("pickup.autopickup_time", 1.0)
	v.SetDefault("pickup.autopickup_utility", .25)
	v.SetDefault("pickup.predict_time_min", 20)
	v.SetDefault("pickup.change_penalty_time", 1.0)
	v.SetDefault("pickup.change_penalty_factor", 1.2)
	v.SetDefault("pickup.recompute_delay", .2)
	v.SetDefault("pickup.recompute_damage_drop", 25)
	v.SetDefault("pickup.valuation_horizon", 600)
	v.SetDefault("pickup.default_skill", 3)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.batch_size", 100)
	v.SetDefault("journal.flush_interval", "5s")
	v.SetDefault("journal.queue_size", 1024)
}

// Load reads config from the given YAML file path. An empty path loads
// defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("ARENABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
