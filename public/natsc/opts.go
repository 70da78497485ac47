package natsc

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultURL is used when Connect is given an empty url.
	DefaultURL = "nats://127.0.0.1:4222"

	defaultTimeout          = 2 * time.Second
	defaultPingInterval     = 2 * time.Minute
	defaultMaxPingsOut      = 2
	defaultReconnectWait    = 2 * time.Second
	defaultReconnectJitter  = 100 * time.Millisecond
	defaultMaxReconnect     = 60
	defaultReconnectBufSize = 8 * 1024 * 1024
	defaultDrainTimeout     = 30 * time.Second
	defaultPendingMsgs      = 65536
	defaultPendingBytes     = 64 * 1024 * 1024
)

// ConnHandler is invoked on connection lifecycle events. It runs on
// the shared callback goroutine, never on the reader.
type ConnHandler func(*Conn)

// ErrHandler is invoked on asynchronous errors tied to a connection
// and, when applicable, a subscription.
type ErrHandler func(*Conn, *Subscription, error)

// Dialer establishes the transport connection to a server.
type Dialer interface {
	Dial(network, address string) (net.Conn, error)
}

// Options configures a connection. The zero value is not usable;
// start from GetDefaultOptions or let Connect apply defaults.
type Options struct {
	Servers           []string
	Name              string
	Verbose           bool
	Pedantic          bool
	NoEcho            bool
	NoRandomize       bool
	AllowReconnect    bool
	MaxReconnect      int
	ReconnectWait     time.Duration
	ReconnectJitter   time.Duration
	ReconnectBufSize  int
	Timeout           time.Duration
	PingInterval      time.Duration
	MaxPingsOut       int
	WriteDeadline     time.Duration
	DrainTimeout      time.Duration
	User              string
	Password          string
	Token             string
	PendingMsgsLimit  int
	PendingBytesLimit int

	Logger  *slog.Logger
	Dialer  Dialer
	Runtime *Runtime

	ClosedCB            ConnHandler
	DisconnectedCB      ConnHandler
	ReconnectedCB       ConnHandler
	DiscoveredServersCB ConnHandler
	LameDuckModeCB      ConnHandler
	AsyncErrorCB        ErrHandler
}

// SetDefaults fills unset fields with their default values.
func (o *Options) SetDefaults() {
	if o.Timeout == 0 {
		o.Timeout = defaultTimeout
	}
	if o.PingInterval == 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.MaxPingsOut == 0 {
		o.MaxPingsOut = defaultMaxPingsOut
	}
	if o.ReconnectWait == 0 {
		o.ReconnectWait = defaultReconnectWait
	}
	if o.ReconnectJitter == 0 {
		o.ReconnectJitter = defaultReconnectJitter
	}
	if o.MaxReconnect == 0 {
		o.MaxReconnect = defaultMaxReconnect
	}
	if o.ReconnectBufSize == 0 {
		o.ReconnectBufSize = defaultReconnectBufSize
	}
	if o.DrainTimeout == 0 {
		o.DrainTimeout = defaultDrainTimeout
	}
	if o.PendingMsgsLimit == 0 {
		o.PendingMsgsLimit = defaultPendingMsgs
	}
	if o.PendingBytesLimit == 0 {
		o.PendingBytesLimit = defaultPendingBytes
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// GetDefaultOptions returns an Options with reconnection enabled and
// all defaults applied.
func GetDefaultOptions() Options {
	o := Options{AllowReconnect: true}
	o.SetDefaults()
	return o
}

// optionsFile mirrors the YAML-loadable subset of Options. Durations
// are strings in time.ParseDuration form.
type optionsFile struct {
	Servers           []string `yaml:"servers"`
	Name              string   `yaml:"name"`
	Verbose           bool     `yaml:"verbose"`
	Pedantic          bool     `yaml:"pedantic"`
	NoEcho            bool     `yaml:"no_echo"`
	NoRandomize       bool     `yaml:"no_randomize"`
	NoReconnect       bool     `yaml:"no_reconnect"`
	MaxReconnect      int      `yaml:"max_reconnect"`
	ReconnectWait     string   `yaml:"reconnect_wait"`
	ReconnectJitter   string   `yaml:"reconnect_jitter"`
	ReconnectBufSize  int      `yaml:"reconnect_buf_size"`
	Timeout           string   `yaml:"timeout"`
	PingInterval      string   `yaml:"ping_interval"`
	MaxPingsOut       int      `yaml:"max_pings_out"`
	WriteDeadline     string   `yaml:"write_deadline"`
	DrainTimeout      string   `yaml:"drain_timeout"`
	User              string   `yaml:"user"`
	Password          string   `yaml:"password"`
	Token             string   `yaml:"token"`
	PendingMsgsLimit  int      `yaml:"pending_msgs_limit"`
	PendingBytesLimit int      `yaml:"pending_bytes_limit"`
}

// LoadOptionsFile reads connection options from a YAML file. Handler
// and runtime fields cannot come from a file and stay unset.
func LoadOptionsFile(path string) (Options, error) {
	var o Options
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("%w: %w", ErrOptionsFile, err)
	}
	var f optionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return o, fmt.Errorf("%w: %w", ErrOptionsFile, err)
	}

	o = Options{
		Servers:           f.Servers,
		Name:              f.Name,
		Verbose:           f.Verbose,
		Pedantic:          f.Pedantic,
		NoEcho:            f.NoEcho,
		NoRandomize:       f.NoRandomize,
		AllowReconnect:    !f.NoReconnect,
		MaxReconnect:      f.MaxReconnect,
		ReconnectBufSize:  f.ReconnectBufSize,
		MaxPingsOut:       f.MaxPingsOut,
		User:              f.User,
		Password:          f.Password,
		Token:             f.Token,
		PendingMsgsLimit:  f.PendingMsgsLimit,
		PendingBytesLimit: f.PendingBytesLimit,
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{f.ReconnectWait, &o.ReconnectWait},
		{f.ReconnectJitter, &o.ReconnectJitter},
		{f.Timeout, &o.Timeout},
		{f.PingInterval, &o.PingInterval},
		{f.WriteDeadline, &o.WriteDeadline},
		{f.DrainTimeout, &o.DrainTimeout},
	} {
		if d.raw == _EMPTY {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return o, fmt.Errorf("%w: %w", ErrOptionsFile, err)
		}
		*d.dst = v
	}
	o.SetDefaults()
	return o, nil
}

// Option tweaks one Options field at Connect time.
type Option func(*Options)

func Name(name string) Option {
	return func(o *Options) { o.Name = name }
}

func WithVerbose() Option {
	return func(o *Options) { o.Verbose = true }
}

func NoReconnect() Option {
	return func(o *Options) { o.AllowReconnect = false }
}

func MaxReconnects(n int) Option {
	return func(o *Options) { o.MaxReconnect = n }
}

func ReconnectWait(d time.Duration) Option {
	return func(o *Options) { o.ReconnectWait = d }
}

func ReconnectBufSize(n int) Option {
	return func(o *Options) { o.ReconnectBufSize = n }
}

func DialTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func PingInterval(d time.Duration) Option {
	return func(o *Options) { o.PingInterval = d }
}

func MaxPingsOutstanding(n int) Option {
	return func(o *Options) { o.MaxPingsOut = n }
}

func UserInfo(user, password string) Option {
	return func(o *Options) { o.User, o.Password = user, password }
}

func TokenAuth(token string) Option {
	return func(o *Options) { o.Token = token }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithDialer(d Dialer) Option {
	return func(o *Options) { o.Dialer = d }
}

func WithRuntime(r *Runtime) Option {
	return func(o *Options) { o.Runtime = r }
}

func ClosedHandler(h ConnHandler) Option {
	return func(o *Options) { o.ClosedCB = h }
}

func DisconnectedHandler(h ConnHandler) Option {
	return func(o *Options) { o.DisconnectedCB = h }
}

func ReconnectedHandler(h ConnHandler) Option {
	return func(o *Options) { o.ReconnectedCB = h }
}

func DiscoveredServersHandler(h ConnHandler) Option {
	return func(o *Options) { o.DiscoveredServersCB = h }
}

func LameDuckModeHandler(h ConnHandler) Option {
	return func(o *Options) { o.LameDuckModeCB = h }
}

func AsyncErrHandler(h ErrHandler) Option {
	return func(o *Options) { o.AsyncErrorCB = h }
}
