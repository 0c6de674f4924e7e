package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nullbyte-dev/rudt/congestion"
	"github.com/nullbyte-dev/rudt/network"
	"github.com/nullbyte-dev/rudt/obfuscate"
	"github.com/nullbyte-dev/rudt/protocol"
)

// TransportOptions decodes the transport tuning knobs out of a parsed
// Config's command list and applies them on top of
// network.DefaultOptions(), so a config file only needs to mention the
// knobs it wants to override. Recognized commands:
//
//	idle_timeout <duration>           e.g. idle_timeout "5s"
//	sync_period <duration>
//	stale_message_timeout <duration>
//	default_obfuscation <0-3>
//	vegas_alpha <packets>
//	vegas_beta <packets>
//	vegas_initial_window <packets>
//	vegas_initial_pace <duration>
//
// Unknown command names are ignored, matching the teacher's own
// "skip what you don't recognize" parser tolerance.
func (cc Config) TransportOptions() (network.Options, error) {
	opts := network.DefaultOptions()

	var vegas vegasOverrides
	for _, cmd := range cc {
		if err := applyCommand(&opts, &vegas, cmd); err != nil {
			return network.Options{}, fmt.Errorf("config: %s: %w", cmd.Name, err)
		}
	}

	if vegas.any() {
		opts.CongestionFactory = vegas.factory()
	}

	return opts, nil
}

type vegasOverrides struct {
	alpha, beta       *uint32
	initialWindow     *uint32
	initialPace       *time.Duration
	set               bool
}

func (v *vegasOverrides) any() bool { return v.set }

func (v *vegasOverrides) factory() congestion.Factory {
	return func() congestion.Controller {
		vg := congestion.NewVegas()
		if v.alpha != nil || v.beta != nil || v.initialWindow != nil || v.initialPace != nil {
			vg.Configure(v.alpha, v.beta, v.initialWindow, v.initialPace)
		}
		return vg
	}
}

func applyCommand(opts *network.Options, vegas *vegasOverrides, cmd Command) error {
	switch cmd.Name {
	case "idle_timeout":
		d, err := singleDuration(cmd)
		if err != nil {
			return err
		}
		opts.IdleTimeout = d
	case "sync_period":
		d, err := singleDuration(cmd)
		if err != nil {
			return err
		}
		opts.SyncPeriod = d
	case "stale_message_timeout":
		d, err := singleDuration(cmd)
		if err != nil {
			return err
		}
		opts.StaleMessageTimeout = d
	case "default_obfuscation":
		n, err := singleUint(cmd)
		if err != nil {
			return err
		}
		opts.DefaultObfuscation = protocol.ObfuscationLevel(n)
		opts.ObfuscationTable = obfuscate.Default()
	case "vegas_alpha":
		n, err := singleUint(cmd)
		if err != nil {
			return err
		}
		vegas.alpha, vegas.set = &n, true
	case "vegas_beta":
		n, err := singleUint(cmd)
		if err != nil {
			return err
		}
		vegas.beta, vegas.set = &n, true
	case "vegas_initial_window":
		n, err := singleUint(cmd)
		if err != nil {
			return err
		}
		vegas.initialWindow, vegas.set = &n, true
	case "vegas_initial_pace":
		d, err := singleDuration(cmd)
		if err != nil {
			return err
		}
		vegas.initialPace, vegas.set = &d, true
	}
	return nil
}

func singleDuration(cmd Command) (time.Duration, error) {
	if len(cmd.Args) != 1 {
		return 0, fmt.Errorf("expected exactly one duration argument, got %d", len(cmd.Args))
	}
	return time.ParseDuration(cmd.Args[0])
}

func singleUint(cmd Command) (uint32, error) {
	if len(cmd.Args) != 1 {
		return 0, fmt.Errorf("expected exactly one integer argument, got %d", len(cmd.Args))
	}
	n, err := strconv.ParseUint(cmd.Args[0], 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
