package main

import (
	"flag"
	"strings"
	"time"
)

// Config holds the flags cmd/captureproxy accepts. It is populated once, by
// ParseFlags, and handed off to proxy.Config/admin.New/cert.NewSelfSignCA.
type Config struct {
	version bool

	Port          int
	OnlyLocalhost bool
	Addr          string

	DataDir      string
	RootCertPath string
	RootKeyPath  string
	CustomCerts  string

	RulesPath string

	HTTPSCapture        bool
	HTTPSCaptureInclude hostList
	HTTPSCaptureExclude hostList

	EventBufferSize int

	RequestTimeout         time.Duration
	ConnectPeekTimeout     time.Duration
	TLSHandshakeTimeout    time.Duration
	UpstreamConnectTimeout time.Duration

	AdminPrefix string

	LogLevel string
	LogJSON  bool
	LogFile  string
}

// hostList is a comma-separated flag.Value, used for the include/exclude
// capture-policy host lists.
type hostList []string

func (h *hostList) String() string {
	if h == nil {
		return ""
	}
	return strings.Join(*h, ",")
}

func (h *hostList) Set(value string) error {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*h = out
	return nil
}

// ParseFlags parses os.Args[1:] (via the stdlib flag package) into a Config.
func ParseFlags() *Config {
	config := new(Config)

	flag.BoolVar(&config.version, "version", false, "show captureproxy version")

	flag.IntVar(&config.Port, "port", 3000, "listener port")
	flag.BoolVar(&config.OnlyLocalhost, "only_localhost", false, "bind solely to loopback interfaces")
	flag.StringVar(&config.Addr, "addr", "", "literal bind address, overrides -port/-only_localhost")

	flag.StringVar(&config.DataDir, "data_dir", "", "parent directory of the CA material and persisted state")
	flag.StringVar(&config.RootCertPath, "root_cert_path", "", "Root CA certificate path; only its directory is used (overriding -data_dir), and the CA files there are named captureproxy-ca-cert.pem and captureproxy-ca-key.pem")
	flag.StringVar(&config.RootKeyPath, "root_key_path", "", "Root CA private key path; not consulted when loading the CA, which reads the key from the -root_cert_path or -data_dir directory")
	flag.StringVar(&config.CustomCerts, "custom_certs", "", "PEM bundle of additional trust anchors for egress")

	flag.StringVar(&config.RulesPath, "rules_path", "", "JSON capture-rule file; empty runs with an empty in-memory rule store")

	flag.BoolVar(&config.HTTPSCapture, "https_capture", false, "enable HTTPS capture (TLS MITM) globally")
	flag.Var(&config.HTTPSCaptureInclude, "https_capture_include", "comma-separated host globs; when set, only matching hosts are captured, and only while -https_capture is on")
	flag.Var(&config.HTTPSCaptureExclude, "https_capture_exclude", "comma-separated host globs never captured regardless of -https_capture")

	flag.IntVar(&config.EventBufferSize, "event_buffer_size", 100, "per-subscriber event channel buffer")

	flag.DurationVar(&config.RequestTimeout, "request_timeout", 60*time.Second, "per-request wall-clock timeout")
	flag.DurationVar(&config.ConnectPeekTimeout, "connect_peek_timeout", 5*time.Second, "CONNECT stream-classification peek timeout")
	flag.DurationVar(&config.TLSHandshakeTimeout, "tls_handshake_timeout", 10*time.Second, "TLS handshake timeout")
	flag.DurationVar(&config.UpstreamConnectTimeout, "upstream_connect_timeout", 10*time.Second, "upstream dial timeout")

	flag.StringVar(&config.AdminPrefix, "admin_prefix", "/admin", "path prefix for the administrative REST surface")

	flag.StringVar(&config.LogLevel, "log_level", "info", "tracing filter: debug, info, warn, or error")
	flag.BoolVar(&config.LogJSON, "log-json", false, "emit structured logs as JSON instead of text")
	flag.StringVar(&config.LogFile, "log_file", "", "append structured logs to this file instead of stdout")

	flag.Parse() //revive:disable-line:deep-exit -- ok for cmd/*
	return config
}
