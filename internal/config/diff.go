package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is the only change applied without a restart.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the YAML paths of changed fields that only take
	// effect for a new session or process, in schema order.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	add := func(changed bool, path string) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}

	add(old.Server.AdminAddr != new.Server.AdminAddr, "server.admin_addr")

	ol, nl := old.Live, new.Live
	add(ol.APIKey != nl.APIKey, "live.api_key")
	add(ol.BaseURL != nl.BaseURL, "live.base_url")
	add(ol.APIVersion != nl.APIVersion, "live.api_version")
	add(ol.Model != nl.Model, "live.model")
	add(ol.Voice != nl.Voice, "live.voice")
	add(ol.Instructions != nl.Instructions, "live.instructions")
	add(!slices.Equal(ol.ResponseModalities, nl.ResponseModalities), "live.response_modalities")
	add(ol.KeepaliveInterval != nl.KeepaliveInterval, "live.keepalive_interval")

	// AudioConfig and MQTTConfig hold only comparable fields.
	add(old.Audio != new.Audio, "audio")

	ob, nb := old.Board, new.Board
	add(ob.Publisher != nb.Publisher, "board.publisher")
	add(ob.TopicPrefix != nb.TopicPrefix, "board.topic_prefix")
	add(ob.Brightness != nb.Brightness, "board.brightness")
	add(ob.Blinking != nb.Blinking, "board.blinking")
	add(ob.IntervalMS != nb.IntervalMS, "board.interval_ms")
	add(ob.MQTT != nb.MQTT, "board.mqtt")

	return d
}
