package config

import (
	"testing"
	"time"
)

func TestTransportOptionsDefaultsUnchangedWhenEmpty(t *testing.T) {
	c := NewConfig()
	opts, err := c.TransportOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.IdleTimeout != 5*time.Second {
		t.Fatalf("expected default idle timeout, got %v", opts.IdleTimeout)
	}
}

func TestTransportOptionsAppliesOverrides(t *testing.T) {
	c := Config{
		{Name: "idle_timeout", Args: []string{"2s"}},
		{Name: "sync_period", Args: []string{"5ms"}},
		{Name: "default_obfuscation", Args: []string{"1"}},
	}
	opts, err := c.TransportOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.IdleTimeout != 2*time.Second {
		t.Fatalf("idle timeout not applied: %v", opts.IdleTimeout)
	}
	if opts.SyncPeriod != 5*time.Millisecond {
		t.Fatalf("sync period not applied: %v", opts.SyncPeriod)
	}
	if opts.DefaultObfuscation != 1 {
		t.Fatalf("default obfuscation not applied: %v", opts.DefaultObfuscation)
	}
}

func TestTransportOptionsRejectsBadDuration(t *testing.T) {
	c := Config{{Name: "idle_timeout", Args: []string{"not-a-duration"}}}
	if _, err := c.TransportOptions(); err == nil {
		t.Fatal("expected an error for a malformed duration argument")
	}
}

func TestTransportOptionsVegasOverrides(t *testing.T) {
	c := Config{
		{Name: "vegas_alpha", Args: []string{"3"}},
		{Name: "vegas_initial_window", Args: []string{"8"}},
	}
	opts, err := c.TransportOptions()
	if err != nil {
		t.Fatal(err)
	}
	cc := opts.CongestionFactory()
	if cc.FlowWindowSize() != 8 {
		t.Fatalf("expected overridden initial window 8, got %d", cc.FlowWindowSize())
	}
}
