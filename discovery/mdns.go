// Package discovery announces the studio on the local network so tablets
// on the same LAN can find the drawing backend.
package discovery

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_sketchmagic._tcp"

// Announcer owns the running mDNS responder. A nil *Announcer is valid and
// means announcement is disabled.
type Announcer struct {
	server   *mdns.Server
	instance string
	port     int
}

// Config controls what is announced.
type Config struct {
	Enabled  bool
	Instance string
}

// ConfigFromEnv reads MDNS_ENABLED and MDNS_INSTANCE.
func ConfigFromEnv() (Config, error) {
	cfg := Config{Instance: strings.TrimSpace(os.Getenv("MDNS_INSTANCE"))}
	if raw := strings.TrimSpace(os.Getenv("MDNS_ENABLED")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("discovery: invalid MDNS_ENABLED %q", raw)
		}
		cfg.Enabled = enabled
	}
	return cfg, nil
}

// Announce starts advertising port when MDNS_ENABLED is true.
func Announce(port int) (*Announcer, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return AnnounceWith(cfg, port)
}

// AnnounceWith starts the responder for cfg. A disabled config yields a nil
// Announcer and no error.
func AnnounceWith(cfg Config, port int) (*Announcer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("discovery: invalid port %d", port)
	}

	instance, err := instanceName(cfg.Instance)
	if err != nil {
		return nil, err
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, []string{"SketchMagic", "path=/studio"})
	if err != nil {
		return nil, fmt.Errorf("discovery: create service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: start responder: %w", err)
	}

	log.Printf("discovery: announcing %s as %q on port %d", ServiceType, instance, port)
	return &Announcer{server: server, instance: instance, port: port}, nil
}

// instanceName falls back to the hostname when no instance is configured.
func instanceName(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("discovery: resolve hostname: %w", err)
	}
	return host, nil
}

// Instance is the advertised instance name, empty when disabled.
func (a *Announcer) Instance() string {
	if a == nil {
		return ""
	}
	return a.instance
}

// Shutdown stops the responder.
func (a *Announcer) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}
