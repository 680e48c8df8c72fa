package softone

import (
	"strings"
	"time"
)

const (
	// MinSessionTTL is the shortest lifetime a cached client id is given.
	MinSessionTTL = 60 * time.Second

	// DefaultSessionTTL applies when neither login nor authenticate hint at an expiry.
	DefaultSessionTTL = 20 * time.Minute

	// DefaultTimeout bounds a single ERP call.
	DefaultTimeout = 20 * time.Second
)

var (
	// DefaultLoginExpiryPaths locate an expiry hint, in seconds, in the login response.
	DefaultLoginExpiryPaths = []string{
		"objs[0].expires_in", "objs[0].EXPIRES_IN",
		"objs[0].ttl", "objs[0].TTL",
		"objs[0].expires", "objs[0].EXPIRES",
	}

	// DefaultAuthExpiryPaths locate an expiry hint, in seconds, in the authenticate response.
	DefaultAuthExpiryPaths = []string{
		"expires_in", "EXPIRES_IN",
		"ttl", "TTL",
		"expires", "EXPIRES",
	}
)

// Config holds the SoftOne web services connection settings.
type Config struct {
	Endpoint string
	Username string
	Password string
	AppID    string

	// Company, Branch, Module and RefID are sent to authenticate. Empty values fall
	// back to the first object returned by login.
	Company string
	Branch  string
	Module  string
	RefID   string

	DefaultTTL time.Duration
	Timeout    time.Duration

	LoginExpiryPaths []string
	AuthExpiryPaths  []string
}

func (c Config) withDefaults() Config {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultSessionTTL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if len(c.LoginExpiryPaths) == 0 {
		c.LoginExpiryPaths = DefaultLoginExpiryPaths
	}
	if len(c.AuthExpiryPaths) == 0 {
		c.AuthExpiryPaths = DefaultAuthExpiryPaths
	}
	return c
}
