package main

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/apogeehq/apogee"
	"github.com/apogeehq/apogee/subsystems/configwatcher"
	"github.com/apogeehq/apogee/subsystems/eventlogger"
	"github.com/apogeehq/apogee/subsystems/mailrelay"
	"github.com/apogeehq/apogee/subsystems/network"
	"github.com/apogeehq/apogee/subsystems/realtime"
	"github.com/apogeehq/apogee/subsystems/scheduler"
	"github.com/apogeehq/apogee/subsystems/webserver"
)

// envPrefix is the root of all environment variable overrides, e.g.
// APOGEE_WEBSERVER_PORT.
const envPrefix = "APOGEE"

type logConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Pretty bool   `yaml:"pretty" toml:"pretty"`
}

type smtpConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

type mailRelayConfig struct {
	mailrelay.Config `yaml:",inline"`
	SMTP             smtpConfig `yaml:"smtp" toml:"smtp"`
}

// fileConfig is the full apogeed configuration file schema.
type fileConfig struct {
	Log            logConfig            `yaml:"log" toml:"log"`
	StatusInterval time.Duration        `yaml:"status_interval" toml:"status_interval"`
	JoinTimeout    time.Duration        `yaml:"join_timeout" toml:"join_timeout"`
	Network        network.Config       `yaml:"network" toml:"network"`
	WebServer      webserver.Config     `yaml:"webserver" toml:"webserver"`
	Realtime       realtime.Config      `yaml:"realtime" toml:"realtime"`
	Scheduler      scheduler.Config     `yaml:"scheduler" toml:"scheduler"`
	ConfigWatcher  configwatcher.Config `yaml:"configwatcher" toml:"configwatcher"`
	MailRelay      mailRelayConfig      `yaml:"mailrelay" toml:"mailrelay"`
	EventLogger    eventlogger.Config   `yaml:"eventlogger" toml:"eventlogger"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Log:           logConfig{Level: "info"},
		JoinTimeout:   apogee.DefaultJoinTimeout,
		Network:       network.DefaultConfig(),
		WebServer:     webserver.DefaultConfig(),
		Realtime:      realtime.DefaultConfig(),
		Scheduler:     scheduler.DefaultConfig(),
		ConfigWatcher: configwatcher.DefaultConfig(),
		MailRelay:     mailRelayConfig{Config: mailrelay.DefaultConfig()},
		EventLogger:   eventlogger.DefaultConfig(),
	}
}

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Launch all subsystems and serve until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := defaultFileConfig()
			if configPath != "" {
				if err := apogee.LoadConfigFile(configPath, &cfg); err != nil {
					return err
				}
			}
			if err := apogee.ApplyEnvOverrides(envPrefix, &cfg); err != nil {
				return err
			}
			if cfg.ConfigWatcher.Path == "" {
				cfg.ConfigWatcher.Path = configPath
			}

			log := newLogger(cfg.Log.Level, cfg.Log.Pretty)
			app := buildApplication(cfg, log)
			if err := registerSubsystems(app, cfg, log); err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file (.yaml or .toml)")
	return cmd
}

func buildApplication(cfg fileConfig, log *zerologAdapter) *apogee.Application {
	registry := apogee.NewRegistry(log, apogee.WithJoinTimeout(cfg.JoinTimeout))
	return apogee.NewApplication(
		apogee.NewStdConfigProvider(&cfg),
		log,
		apogee.WithRegistry(registry),
		apogee.WithStatusInterval(cfg.StatusInterval),
	)
}

// registerSubsystems wires every subsystem in dependency order. Registration
// order is also the landing order in reverse, so dependents come after what
// they depend on.
func registerSubsystems(app *apogee.Application, cfg fileConfig, log *zerologAdapter) error {
	web := webserver.New(cfg.WebServer, log, app.Registry())

	subsystems := []apogee.Subsystem{
		eventlogger.New(cfg.EventLogger, log, app),
		network.New(cfg.Network, log),
		web,
		realtime.New(cfg.Realtime, log, web),
		scheduler.New(cfg.Scheduler, log),
		mailrelay.New(cfg.MailRelay.Config, log, smtpDelivery(cfg.MailRelay.SMTP)),
	}
	if cfg.ConfigWatcher.Path != "" {
		subsystems = append(subsystems, configwatcher.New(cfg.ConfigWatcher, log, app))
	}

	for _, sub := range subsystems {
		if _, err := app.RegisterSubsystem(sub); err != nil {
			return fmt.Errorf("registering %s: %w", sub.Name(), err)
		}
	}
	return nil
}

func smtpDelivery(cfg smtpConfig) mailrelay.DeliveryFunc {
	return func(_ context.Context, from string, msg mailrelay.Message) error {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
			from, strings.Join(msg.To, ", "), msg.Subject, msg.Body)
		return smtp.SendMail(addr, nil, from, msg.To, []byte(body))
	}
}
