package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	Text     = "text/plain"
	Markdown = "text/markdown"
)

type Configuration struct {
	// Name of the wiki.
	Name  string
	Topic string
	// Domain is the host the instance is reachable at; it is also the instance's WebFinger username.
	Domain string
	Https  bool
	// Url is the instance's url, built from Domain and Https.
	Url  *url.URL
	Port uint16
	// DbUrl is the SQLite connection string of the wiki database.
	DbUrl string
	// QueueDbUrl is the SQLite connection string of the task queue. It may point to the same file as DbUrl.
	QueueDbUrl    string
	MigrationsDir string
	Language      string
	MediaType     string
	// RsaKeySize specifies the size of the RSA keys to be used by the wiki in signing its outgoing activities.
	RsaKeySize int
	// Debug, if true, will make the application log all HTTP requests and other events.
	Debug bool
	// ApprovalRequired specifies whether new accounts need to be reviewed by an administrator.
	ApprovalRequired bool
	// ArticleApprovalRequired keeps new local articles hidden and unfederated until an admin approves them.
	ArticleApprovalRequired bool
	AdminUsername           string
	// RefreshInterval is the age after which a cached remote instance or person is fetched again.
	RefreshInterval time.Duration
	// SyncInterval is the period of the followed instances' synchronization job. Zero disables it.
	SyncInterval    time.Duration
	DeliveryTimeout time.Duration
	Workers         int
	// RedisUrl enables the fetch cache when set.
	RedisUrl string
	CacheTTL time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "fedwiki")
	v.SetDefault("domain", "localhost:8080")
	v.SetDefault("https", false)
	v.SetDefault("port", 8080)
	v.SetDefault("db_url", "file:wiki.db?_fk=1")
	v.SetDefault("queue_db_url", "file:queue.db?_journal=WAL")
	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("language", "en")
	v.SetDefault("media_type", Markdown)
	v.SetDefault("rsa_key_size", 2048)
	v.SetDefault("admin_username", "admin")
	v.SetDefault("refresh_interval", 24*time.Hour)
	v.SetDefault("sync_interval", time.Hour)
	v.SetDefault("delivery_timeout", 10*time.Second)
	v.SetDefault("workers", 4)
	v.SetDefault("cache_ttl", 5*time.Minute)
}

// ReadConfig loads config.toml or config.yaml from the working directory or /etc/fedwiki. WIKI_* environment
// variables override file values, e.g. WIKI_DB_URL.
func ReadConfig() (Configuration, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fedwiki")
	v.SetEnvPrefix("WIKI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Configuration{}, fmt.Errorf("reading config: %w", err)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (Configuration, error) {
	setDefaults(v)

	cfg := Configuration{
		Name:                    v.GetString("name"),
		Topic:                   v.GetString("topic"),
		Domain:                  v.GetString("domain"),
		Https:                   v.GetBool("https"),
		Port:                    v.GetUint16("port"),
		DbUrl:                   v.GetString("db_url"),
		QueueDbUrl:              v.GetString("queue_db_url"),
		MigrationsDir:           v.GetString("migrations_dir"),
		Language:                v.GetString("language"),
		MediaType:               v.GetString("media_type"),
		RsaKeySize:              v.GetInt("rsa_key_size"),
		Debug:                   v.GetBool("debug"),
		ApprovalRequired:        v.GetBool("approval_required"),
		ArticleApprovalRequired: v.GetBool("article_approval_required"),
		AdminUsername:           v.GetString("admin_username"),
		RefreshInterval:         v.GetDuration("refresh_interval"),
		SyncInterval:            v.GetDuration("sync_interval"),
		DeliveryTimeout:         v.GetDuration("delivery_timeout"),
		Workers:                 v.GetInt("workers"),
		RedisUrl:                v.GetString("redis_url"),
		CacheTTL:                v.GetDuration("cache_ttl"),
	}

	if cfg.Domain == "" || strings.ContainsAny(cfg.Domain, "/ ") {
		return cfg, fmt.Errorf("invalid domain %q", cfg.Domain)
	}
	if cfg.RsaKeySize < 1024 {
		return cfg, fmt.Errorf("rsa key size %d is too small", cfg.RsaKeySize)
	}

	scheme := "http"
	if cfg.Https {
		scheme = "https"
	}
	cfg.Url = &url.URL{Scheme: scheme, Host: cfg.Domain}
	return cfg, nil
}
