package clickhouse

import "time"

// Config holds connection settings. Zero values fall back to the defaults below.
type Config struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	// UseHTTP talks to the HTTP interface (8123) instead of the native protocol.
	UseHTTP bool
	// AsyncInsert lets the server batch inserts; WaitForAsync keeps Store synchronous anyway.
	AsyncInsert  bool
	WaitForAsync bool
	MaxExecTime  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 9000
		if c.UseHTTP {
			c.Port = 8123
		}
	}
	if c.Database == "" {
		c.Database = "default"
	}
	if c.User == "" {
		c.User = "default"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	return c
}
