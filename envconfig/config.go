package envconfig

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// Set via SUBTOK_ORIGINS in the environment
	AllowOrigins []string
	// Set via SUBTOK_DEBUG in the environment
	Debug bool
	// Set via SUBTOK_HOME in the environment
	Home string
	// Set via SUBTOK_NOPRUNE in the environment
	NoPrune bool
	// Set via SUBTOK_NUM_PARALLEL in the environment
	NumParallel int
	// Set via SUBTOK_WINDOW in the environment
	Window int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SUBTOK_DEBUG":        {"SUBTOK_DEBUG", Debug, "Show additional debug information (e.g. SUBTOK_DEBUG=1)"},
		"SUBTOK_HOST":         {"SUBTOK_HOST", "", "IP Address for the subtok server (default 127.0.0.1:11435)"},
		"SUBTOK_HOME":         {"SUBTOK_HOME", Home, "The path to the tokenizer checkpoint directory"},
		"SUBTOK_NOPRUNE":      {"SUBTOK_NOPRUNE", NoPrune, "Do not prune rare corpus entries when training"},
		"SUBTOK_NUM_PARALLEL": {"SUBTOK_NUM_PARALLEL", NumParallel, "Number of workers for corpus scans and batch encoding (default 1)"},
		"SUBTOK_ORIGINS":      {"SUBTOK_ORIGINS", AllowOrigins, "A comma separated list of allowed origins"},
		"SUBTOK_WINDOW":       {"SUBTOK_WINDOW", Window, "Default encoding window size (default 32)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

var defaultAllowOrigins = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// Clean quotes and spaces from the environment value, consulting the
// config file when the environment is unset
func clean(key string) string {
	if v := strings.Trim(os.Getenv(key), "\"' "); v != "" {
		return v
	}
	return GetConfigValue(key)
}

func init() {
	// default values
	NumParallel = 1
	Window = 32

	LoadConfig()
}

func LoadConfig() {
	if debug := clean("SUBTOK_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	Home = clean("SUBTOK_HOME")
	if Home == "" {
		if home, err := os.UserHomeDir(); err == nil {
			Home = filepath.Join(home, ".subtok")
		}
	}

	if onp := clean("SUBTOK_NUM_PARALLEL"); onp != "" {
		val, err := strconv.Atoi(onp)
		if err != nil || val <= 0 {
			NumParallel = 1
		} else {
			NumParallel = val
		}
	}

	if window := clean("SUBTOK_WINDOW"); window != "" {
		val, err := strconv.Atoi(window)
		if err != nil || val <= 0 {
			Window = 32
		} else {
			Window = val
		}
	}

	if noprune := clean("SUBTOK_NOPRUNE"); noprune != "" {
		NoPrune = true
	}

	AllowOrigins = nil
	if origins := clean("SUBTOK_ORIGINS"); origins != "" {
		AllowOrigins = strings.Split(origins, ",")
	}
	for _, allowOrigin := range defaultAllowOrigins {
		AllowOrigins = append(AllowOrigins,
			fmt.Sprintf("http://%s", allowOrigin),
			fmt.Sprintf("https://%s", allowOrigin),
			fmt.Sprintf("http://%s:*", allowOrigin),
			fmt.Sprintf("https://%s:*", allowOrigin),
		)
	}
}

// CheckpointsDir returns the directory trained tokenizers are saved to.
func CheckpointsDir() string {
	return filepath.Join(Home, "checkpoints")
}

type SubtokHost struct {
	Scheme string
	Host   string
	Port   string
}

func (h SubtokHost) String() string {
	return fmt.Sprintf("%s://%s", h.Scheme, net.JoinHostPort(h.Host, h.Port))
}

var ErrInvalidHostPort = errors.New("invalid port specified in SUBTOK_HOST")

// GetHost parses SUBTOK_HOST into scheme, host and port, defaulting to
// http://127.0.0.1:11435. A bare scheme shifts the default port to 80 or
// 443; an out-of-range port fails with ErrInvalidHostPort.
func GetHost() (SubtokHost, error) {
	defaultPort := "11435"

	hostVar := clean("SUBTOK_HOST")

	scheme, hostport, ok := strings.Cut(hostVar, "://")
	switch {
	case !ok:
		scheme, hostport = "http", hostVar
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport = strings.TrimRight(hostport, "/")

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if portNum, err := strconv.ParseInt(port, 10, 32); err != nil || portNum > 65535 || portNum < 0 {
		return SubtokHost{Scheme: scheme, Host: host, Port: port}, ErrInvalidHostPort
	}

	return SubtokHost{Scheme: scheme, Host: host, Port: port}, nil
}
