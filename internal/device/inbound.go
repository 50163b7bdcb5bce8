package device

import (
	"time"

	"github.com/sweeney/relay-sensor/internal/network"
	"github.com/sweeney/relay-sensor/internal/zcl"
)

// Handlers returns network handlers that move every signal onto the worker.
func (d *Device) Handlers() network.Handlers {
	return network.Handlers{
		OnJoinChange: func(joined bool) {
			d.post("join-change", func() { d.SetNetworkJoined(joined) })
		},
		OnWriteAttribute: func(a zcl.Attribute) {
			d.post("write-attribute", func() { d.HandleWrite(a) })
		},
		OnCommand: func(c zcl.Command) {
			d.post("cluster-command", func() { d.HandleCommand(c) })
		},
	}
}

func (d *Device) post(name string, fn func()) {
	if err := d.queue.Post(name, fn); err != nil {
		d.logger.Warn("inbound signal dropped", "signal", name, "err", err)
	}
}

// HandleWrite applies an inbound attribute write.
func (d *Device) HandleWrite(a zcl.Attribute) {
	switch {
	case a.Cluster == zcl.ClusterOnOff && a.ID == zcl.AttrOnOff && d.onOffEndpoint(a.Endpoint):
		on, ok := a.Value.(bool)
		if !ok {
			d.logger.Warn("on/off write with non-bool value", "type", zcl.TypeName(a.Type))
			return
		}
		if a.Endpoint == d.cfg.RelayEndpoint {
			d.SetRelay(on)
		} else {
			d.SetLight(on)
		}
	case a.Cluster == zcl.ClusterIdentify && a.ID == zcl.AttrIdentifyTime:
		secs, ok := a.Value.(uint16)
		if !ok {
			d.logger.Warn("identify time write with wrong type", "type", zcl.TypeName(a.Type))
			return
		}
		d.Identify(time.Duration(secs) * time.Second)
	default:
		d.logger.Warn("write to unsupported attribute",
			"endpoint", a.Endpoint,
			"cluster", zcl.ClusterName(a.Cluster),
			"attribute", zcl.AttributeName(a.Cluster, a.ID))
	}
}

// HandleCommand applies an inbound cluster command.
func (d *Device) HandleCommand(c zcl.Command) {
	switch c.Cluster {
	case zcl.ClusterOnOff:
		if !d.onOffEndpoint(c.Endpoint) {
			d.logger.Warn("on/off command for unknown endpoint", "endpoint", c.Endpoint)
			return
		}
		set, toggle := d.SetRelay, d.ToggleRelay
		if c.Endpoint != d.cfg.RelayEndpoint {
			set, toggle = d.SetLight, d.ToggleLight
		}
		switch c.ID {
		case zcl.CmdOff:
			set(false)
		case zcl.CmdOn:
			set(true)
		case zcl.CmdToggle:
			toggle()
		default:
			d.logger.Warn("unsupported on/off command", "cmd", c.ID)
		}
	case zcl.ClusterIdentify:
		if c.ID != zcl.CmdIdentify {
			d.logger.Debug("unsupported identify command", "cmd", c.ID)
			return
		}
		secs, err := zcl.IdentifySeconds(c)
		if err != nil {
			d.logger.Warn("bad identify command", "err", err)
			return
		}
		d.Identify(time.Duration(secs) * time.Second)
	default:
		d.logger.Debug("command for unsupported cluster", "cluster", zcl.ClusterName(c.Cluster), "cmd", c.ID)
	}
}

// onOffEndpoint reports whether ep carries an On/Off cluster.
func (d *Device) onOffEndpoint(ep uint8) bool {
	return ep == d.cfg.RelayEndpoint || (d.cfg.LightEndpoint != 0 && ep == d.cfg.LightEndpoint)
}

// Identify blinks the LED for dur. Zero stops identifying. Profiles without
// identify blinking ignore it.
func (d *Device) Identify(dur time.Duration) {
	if !d.cfg.Profile.SupportsIdentifyBlink {
		d.logger.Debug("identify ignored by profile", "profile", d.cfg.Profile.Name)
		return
	}
	if dur <= 0 {
		d.stopIdentify()
		return
	}
	d.identifyUntil = d.clock.Now().Add(dur)
	d.logger.Info("identify started", "duration", dur)
	if !d.identifying {
		d.identifying = true
		d.blink.Schedule(0)
	}
}

// Identifying reports whether the LED is blinking for identify.
func (d *Device) Identifying() bool {
	return d.identifying
}

func (d *Device) stopIdentify() {
	if !d.identifying {
		return
	}
	d.identifying = false
	d.blink.Cancel()
	d.restoreLED()
	d.logger.Info("identify stopped")
}

func (d *Device) runBlink() {
	if !d.identifying {
		return
	}
	if !d.clock.Now().Before(d.identifyUntil) {
		d.stopIdentify()
		return
	}
	d.setLED(!d.ledOn)
	d.blink.Schedule(d.cfg.IdentifyBlink)
}

// restoreLED shows the join state on profiles that have a join LED and
// keeps the LED off otherwise.
func (d *Device) restoreLED() {
	d.setLED(d.cfg.Profile.JoinLED && d.Joined())
}

func (d *Device) setLED(on bool) {
	if d.led == nil {
		return
	}
	d.ledOn = on
	if err := d.led.Set(on); err != nil {
		d.logger.Warn("drive led", "on", on, "err", err)
	}
}

// LEDOn returns the last LED level driven.
func (d *Device) LEDOn() bool {
	return d.ledOn
}
