package config

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/bebop/internal/navigation"
	"github.com/nao1215/bebop/internal/uri"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "bebop"

	// DefaultConnectTimeout bounds TCP connection setup, proxy included.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultReadTimeout is the idle timeout of every read. A capsule
	// that streams slowly but steadily never hits it.
	DefaultReadTimeout = 30 * time.Second

	// DefaultMaxBodySize caps response bodies at 16 MiB.
	DefaultMaxBodySize int64 = 16 << 20

	// DefaultMaxRedirects is the number of redirects followed per navigation.
	DefaultMaxRedirects = 5

	// DefaultCacheEntries is the number of responses kept in memory.
	DefaultCacheEntries = 64

	// DefaultCacheBytes caps the cached bodies at 32 MiB.
	DefaultCacheBytes int64 = 32 << 20

	// DefaultCacheTTL is how long a cached response stays valid.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultLinkCommit is the link selection policy.
	DefaultLinkCommit = "unambiguous"

	// DefaultHome is the page opened by "bebop browse" without argument.
	DefaultHome = navigation.AboutVersion

	// DefaultTextWidth is the wrap width of text output.
	DefaultTextWidth = 80

	// DefaultHistoryLimit is the number of history entries kept.
	DefaultHistoryLimit = navigation.DefaultHistoryLimit

	// DefaultBatchSize is the number of concurrent fetches of "bebop fetch".
	DefaultBatchSize = 4
)

// Config holds all configuration options for bebop.
// It is filled with defaults by NewConfig, overridden by the YAML file and
// finally by CLI flags, then passed to the components that need it.
type Config struct {
	// ConnectTimeout bounds connection setup.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReadTimeout is the idle timeout applied to every read.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// MaxBodySize is the largest response body accepted, in bytes.
	MaxBodySize int64 `yaml:"max_body_size"`

	// MaxRedirects is the number of redirects followed per navigation.
	MaxRedirects int `yaml:"max_redirects"`

	// AutoFollowRedirects follows redirects without asking.
	AutoFollowRedirects bool `yaml:"auto_follow_redirects"`

	// CacheEntries and CacheBytes bound the response cache.
	CacheEntries int   `yaml:"cache_entries"`
	CacheBytes   int64 `yaml:"cache_bytes"`

	// CacheTTL is how long a cached response stays valid. Zero disables
	// expiry.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// PinMaxAge makes pins older than this expire and be replaced on the
	// next visit. Zero keeps pins until their certificate expires.
	PinMaxAge time.Duration `yaml:"pin_max_age"`

	// LinkCommit is the link selection policy: "unambiguous",
	// "max-digits" or "enter".
	LinkCommit string `yaml:"link_commit"`

	// Home is the page opened when browsing starts without a URL.
	Home string `yaml:"home"`

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string `yaml:"proxy"`

	// RenderHTML renders text/html responses instead of describing them.
	RenderHTML bool `yaml:"render_html"`

	// TextWidth is the wrap width of text output. Zero disables wrapping.
	TextWidth int `yaml:"text_width"`

	// HistoryLimit is the number of history entries kept.
	HistoryLimit int `yaml:"history_limit"`

	// BatchSize is the number of concurrent fetches when several URLs
	// are fetched at once.
	BatchSize int `yaml:"batch_size"`

	// DBDir is the directory of the SQLite trust database.
	// Defaults to the XDG data directory (~/.local/share/bebop on Linux).
	DBDir string `yaml:"db_dir"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"-"`

	// ConfigFilePath is the configuration file given on the command line.
	ConfigFilePath string `yaml:"-"`

	// JSONOutput and MarkdownOutput select the output format of fetch.
	// They are mutually exclusive.
	JSONOutput     bool `yaml:"-"`
	MarkdownOutput bool `yaml:"-"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ConnectTimeout:      DefaultConnectTimeout,
		ReadTimeout:         DefaultReadTimeout,
		MaxBodySize:         DefaultMaxBodySize,
		MaxRedirects:        DefaultMaxRedirects,
		AutoFollowRedirects: true,
		CacheEntries:        DefaultCacheEntries,
		CacheBytes:          DefaultCacheBytes,
		CacheTTL:            DefaultCacheTTL,
		LinkCommit:          DefaultLinkCommit,
		Home:                DefaultHome,
		TextWidth:           DefaultTextWidth,
		HistoryLimit:        DefaultHistoryLimit,
		BatchSize:           DefaultBatchSize,
		DBDir:               XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for bebop.
// On Linux: ~/.local/share/bebop
// On macOS: ~/Library/Application Support/bebop
// On Windows: %LOCALAPPDATA%\bebop
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for bebop.
// On Linux: ~/.config/bebop
// On macOS: ~/Library/Application Support/bebop
// On Windows: %APPDATA%\bebop
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGConfigFile returns the path of the configuration file in the XDG
// config directory.
func XDGConfigFile() string {
	return filepath.Join(XDGConfigDir(), "config.yaml")
}

// CommitPolicy returns the parsed link commit policy.
func (c *Config) CommitPolicy() (navigation.CommitPolicy, error) {
	p, err := navigation.ParseCommitPolicy(c.LinkCommit)
	if err != nil {
		return 0, errors.Join(ErrInvalidLinkCommit, err)
	}
	return p, nil
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the sentinel errors.
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}
	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}
	if c.CacheEntries <= 0 || c.CacheBytes <= 0 {
		return ErrInvalidCacheSize
	}
	if c.CacheTTL < 0 {
		return ErrInvalidCacheTTL
	}
	if c.PinMaxAge < 0 {
		return ErrInvalidPinMaxAge
	}
	if _, err := c.CommitPolicy(); err != nil {
		return err
	}
	if _, err := uri.ParseInput(c.Home, uri.SchemeGemini); err != nil {
		return errors.Join(ErrInvalidHome, err)
	}
	if c.TextWidth < 0 {
		return ErrInvalidTextWidth
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONOutput && c.MarkdownOutput {
		return ErrConflictingOutputFormats
	}
	return nil
}
