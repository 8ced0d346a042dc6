package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	MetricsEnabled bool
	DataPath       string
	DataDecimal    string
	DataTimeout    time.Duration
	DatasetName    string
	OutDir         string
	ReadmePath     string
	ImagePath      string
	ImageWidth     int
	TileURL        string
	Title          string
	H3Res          int
	CacheBackend   string
	CacheSize      int
	CacheTTL       time.Duration
	CacheTTLOvr    map[string]time.Duration
	CacheOpTimeout time.Duration
	RedisAddr      string
	Invalidation   InvalidationCfg
}

func FromEnv() Config {
	dataPath := getenv("DATA_PATH", "data/data.tsv")
	base := path.Base(dataPath)
	name := strings.TrimSuffix(base, path.Ext(base))

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		DataPath:       dataPath,
		DataDecimal:    getenv("DATA_DECIMAL", "."),
		DataTimeout:    getduration("DATA_FETCH_TIMEOUT", 30*time.Second),
		DatasetName:    getenv("DATASET_NAME", name),
		OutDir:         getenv("OUT_DIR", "."),
		ReadmePath:     getenv("README_PATH", "README.md"),
		ImagePath:      getenv("IMAGE_PATH", "images/map_image.png"),
		ImageWidth:     getint("IMAGE_WIDTH", 1440),
		TileURL:        getenv("TILE_URL", ""),
		Title:          getenv("MAP_TITLE", ""),
		H3Res:          getint("H3_RES", 4),
		CacheBackend:   strings.ToLower(getenv("CACHE_BACKEND", "memory")),
		CacheSize:      getint("CACHE_SIZE", 64),
		CacheTTL:       getduration("CACHE_TTL", 10*time.Minute),
		CacheTTLOvr:    parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Driver:  getenv("INVALIDATION_DRIVER", "kafka"),
			Topic:   getenv("KAFKA_TOPIC", "dataset-updates"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "mapserver"),
		},
	}
}

// TTLFor returns the per-artifact override from CACHE_TTL_OVERRIDES or the default TTL.
func (c Config) TTLFor(artifact string) time.Duration {
	if d, ok := c.CacheTTLOvr[artifact]; ok && d > 0 {
		return d
	}
	return c.CacheTTL
}

func (c Config) Validate() error {
	if c.DataPath == "" {
		return errors.New("DATA_PATH is required")
	}
	if c.DataDecimal != "." && c.DataDecimal != "," {
		return fmt.Errorf("DATA_DECIMAL must be \".\" or \",\", got %q", c.DataDecimal)
	}
	if c.H3Res < 0 || c.H3Res > 15 {
		return fmt.Errorf("H3_RES must be within 0..15, got %d", c.H3Res)
	}
	switch c.CacheBackend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory|redis|none, got %q", c.CacheBackend)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("CACHE_SIZE must be positive, got %d", c.CacheSize)
	}
	if c.Invalidation.Enabled && c.Invalidation.Driver != "kafka" {
		return fmt.Errorf("INVALIDATION_DRIVER %q is not supported", c.Invalidation.Driver)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "map.png=1h,index.html=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	parts := strings.SplitSeq(s, ",")
	for p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
