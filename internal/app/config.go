// Package app assembles the recorder service from settings.
package app

import (
	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/detector"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/mqtt"
	"github.com/tphakala/rtp-recorder/internal/recorder"
)

// LoggingConfig maps the logging settings group.
func LoggingConfig(settings *conf.Settings) *logger.LoggingConfig {
	level := settings.Logging.Level
	if settings.Debug {
		level = "debug"
	}
	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     settings.Main.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
		ModuleLevels: settings.Logging.ModuleLevels,
	}
	if settings.Logging.File != "" {
		fileLevel := settings.Logging.FileLevel
		if fileLevel == "" {
			fileLevel = level
		}
		cfg.FileOutput = &logger.FileOutput{Enabled: true, Path: settings.Logging.File, Level: fileLevel}
	}
	return cfg
}

// FeedOptions maps the feeds settings group.
func FeedOptions(settings *conf.Settings) feed.GenerateOptions {
	return feed.GenerateOptions{
		Count:       settings.Feeds.Count,
		StartPort:   settings.Feeds.StartPort,
		IDPrefix:    settings.Feeds.IDPrefix,
		PayloadType: settings.Feeds.PayloadType,
		Codec:       settings.Feeds.Codec,
	}
}

// DetectorConfig maps the detection settings group.
func DetectorConfig(settings *conf.Settings) detector.Config {
	return detector.Config{
		BindAddress:   settings.Detection.BindAddress,
		Timeout:       settings.Detection.Timeout,
		MaxConcurrent: settings.Detection.MaxConcurrent,
	}
}

// RecorderConfig maps the recording settings group.
func RecorderConfig(settings *conf.Settings) recorder.Config {
	r := &settings.Recording
	return recorder.Config{
		FfmpegPath:       r.FfmpegPath,
		OutputDir:        r.OutputDir,
		Duration:         r.Duration,
		StopTimeout:      r.StopTimeout,
		AudioCodec:       r.AudioCodec,
		Container:        r.Container,
		LogLevel:         r.LogLevel,
		CleanExitCodes:   r.CleanExitCodes,
		ArchiveOnFailure: r.ArchiveOnFailure,
		Location:         settings.Location(),
	}
}

// MQTTConfig maps the mqtt settings group. The instance name is the client
// id unless one is set.
func MQTTConfig(settings *conf.Settings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	if settings.MQTT.Topic != "" {
		cfg.Topic = settings.MQTT.Topic
	}
	switch {
	case settings.MQTT.ClientID != "":
		cfg.ClientID = settings.MQTT.ClientID
	case settings.Main.Name != "":
		cfg.ClientID = settings.Main.Name
	}
	return cfg
}

// NewLogger creates the central logger and returns it with the root logger
// the components derive their modules from.
func NewLogger(settings *conf.Settings) (*logger.CentralLogger, logger.Logger, error) {
	central, err := logger.NewCentralLogger(LoggingConfig(settings))
	if err != nil {
		return nil, nil, err
	}
	return central, central.Module(""), nil
}
