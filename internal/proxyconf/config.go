package proxyconf

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
)

const (
	// MinListenPort is the lower bound of generated listen ports.
	MinListenPort = 10000
	// MaxListenPort is the upper bound of generated listen ports.
	MaxListenPort = 65535

	// portAttempts bounds the search for an unbound port.
	portAttempts = 64

	// aes128KeyLength is the key length for aes-128 based methods.
	aes128KeyLength = 16
	// defaultKeyLength is the key length for all other methods.
	defaultKeyLength = 32
)

// ErrNoFreePort is returned when no unbound port was found in range.
var ErrNoFreePort = errors.New("no free listen port available")

// Config is the generated sing-box configuration document.
type Config struct {
	Log       LogConfig   `json:"log"`
	DNS       DNSConfig   `json:"dns"`
	Inbounds  []Inbound   `json:"inbounds"`
	Outbounds []Outbound  `json:"outbounds"`
	Route     RouteConfig `json:"route"`
}

// LogConfig controls the proxy's own logging.
type LogConfig struct {
	Level     string `json:"level"`
	Timestamp bool   `json:"timestamp"`
}

// DNSConfig is the resolver block.
type DNSConfig struct {
	Servers []DNSServer `json:"servers"`
}

// DNSServer is a single upstream resolver.
type DNSServer struct {
	Tag     string `json:"tag"`
	Address string `json:"address"`
}

// Inbound is a listening proxy definition.
type Inbound struct {
	Type       string `json:"type"`
	Tag        string `json:"tag"`
	Listen     string `json:"listen"`
	ListenPort int    `json:"listen_port"`
	Method     string `json:"method"`
	Password   string `json:"password"`
}

// Outbound is an egress definition.
type Outbound struct {
	Type string `json:"type"`
	Tag  string `json:"tag"`
}

// RouteConfig is the routing rule block.
type RouteConfig struct {
	Rules []RouteRule `json:"rules"`
	Final string      `json:"final"`
}

// RouteRule routes matched traffic to an outbound.
type RouteRule struct {
	Protocol string `json:"protocol,omitempty"`
	Outbound string `json:"outbound"`
}

// Generate builds a fresh configuration with a free listen port and a new password.
func Generate(method string) (*Config, error) {
	port, err := FreePort()
	if err != nil {
		return nil, err
	}

	password, err := NewPassword(method)
	if err != nil {
		return nil, err
	}

	return &Config{
		Log: LogConfig{
			Level:     "info",
			Timestamp: true,
		},
		DNS: DNSConfig{
			Servers: []DNSServer{
				{Tag: "cloudflare", Address: "1.1.1.1"},
			},
		},
		Inbounds: []Inbound{
			{
				Type:       "shadowsocks",
				Tag:        "ss-in",
				Listen:     "::",
				ListenPort: port,
				Method:     method,
				Password:   password,
			},
		},
		Outbounds: []Outbound{
			{Type: "direct", Tag: "direct"},
		},
		Route: RouteConfig{
			Rules: []RouteRule{
				{Protocol: "dns", Outbound: "direct"},
			},
			Final: "direct",
		},
	}, nil
}

// FreePort picks a random port in [MinListenPort, MaxListenPort] that is not
// bound by any existing listener at generation time.
func FreePort() (int, error) {
	portRange := big.NewInt(MaxListenPort - MinListenPort + 1)

	for attempt := 0; attempt < portAttempts; attempt++ {
		n, err := rand.Int(rand.Reader, portRange)
		if err != nil {
			return 0, fmt.Errorf("pick port: %w", err)
		}

		port := MinListenPort + int(n.Int64())

		probe, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err != nil {
			continue
		}

		if err = probe.Close(); err != nil {
			return 0, fmt.Errorf("close port probe: %w", err)
		}

		return port, nil
	}

	return 0, ErrNoFreePort
}

// NewPassword generates a random pre-shared key sized for the method.
func NewPassword(method string) (string, error) {
	length := defaultKeyLength
	if strings.Contains(method, "aes-128") {
		length = aes128KeyLength
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}
