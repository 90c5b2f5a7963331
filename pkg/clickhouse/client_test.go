package clickhouse

import (
	"net/url"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(Config{
		Host:        "ch.local",
		Port:        9000,
		Database:    "cointrend",
		User:        "app",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 30 * time.Second,
		AsyncInsert: true,
	})
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch.local:9000" || u.Path != "/cointrend" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Fatalf("password not preserved: %q", dsn)
	}
	q := u.Query()
	if q.Get("dial_timeout") != "5s" || q.Get("max_execution_time") != "30" || q.Get("async_insert") != "1" {
		t.Fatalf("unexpected params %v", q)
	}
	if q.Has("wait_for_async_insert") {
		t.Fatal("wait flag should be absent")
	}
}

func TestBuildDSN_HTTP(t *testing.T) {
	dsn := BuildDSN(Config{Host: "h", Port: 8123, Database: "d", User: "u", UseHTTP: true})
	u, _ := url.Parse(dsn)
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q", u.Scheme)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Host: "h", UseHTTP: true}.withDefaults()
	if cfg.Port != 8123 || cfg.Database != "default" || cfg.MaxOpenConns != 10 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg := (Config{Host: "h"}).withDefaults(); cfg.Port != 9000 {
		t.Fatalf("native port = %d", cfg.Port)
	}
}
