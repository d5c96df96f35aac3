package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/massbridge/internal/adapters/mqttserver"
	"github.com/mikey-austin/massbridge/internal/bridged"
	"github.com/mikey-austin/massbridge/internal/browse"
	"github.com/mikey-austin/massbridge/internal/bus"
	"github.com/mikey-austin/massbridge/internal/hass"
	"github.com/mikey-austin/massbridge/internal/mass"
	"github.com/mikey-austin/massbridge/internal/modules/controls"
	embeddedmqtt "github.com/mikey-austin/massbridge/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/massbridge/internal/modules/players"
	"github.com/mikey-austin/massbridge/pkg/mab"
)

func main() {
	var (
		configPath  string
		broker      string
		identity    string
		topicBase   string
		logLevel    string
		logFormat   string
		logOutput   string
		moduleOnly  string
		printConfig bool
		dryRun      bool
	)

	defaultConfig, err := bridged.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "bridge identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := bridged.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, identity, topicBase, logLevel, logFormat, logOutput)

	if printConfig {
		printResolvedConfig(cfg)
		return
	}
	if dryRun {
		return
	}

	logger := bridged.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat, cfg.Server.LogOutput)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embeddedURL := embeddedBrokerURL(cfg)
	skipEmbedded := false

	if moduleOnly != "embedded_mqtt" && cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedURL {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
		skipEmbedded = true
	}

	if cfg.Server.Broker == "" && !(moduleOnly == "embedded_mqtt" && cfg.Modules.EmbeddedMQTT.Enabled) {
		logger.Error("broker is required")
		os.Exit(1)
	}
	logger.Info("mabd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("music_assistant", cfg.MusicAssistant.URL()),
		zap.Strings("modules", enabledModules(cfg)),
	)

	var client *mqttserver.Client
	if moduleOnly != "embedded_mqtt" {
		var err error
		client, err = mqttserver.NewClient(mqttserver.Options{
			BrokerURL: cfg.Server.Broker,
			ClientID:  fmt.Sprintf("mabd-%d", time.Now().UnixNano()),
			Username:  cfg.Server.Auth.User,
			Password:  cfg.Server.Auth.Pass,
			TLSCA:     cfg.Server.TLS.CA,
			TLSCert:   cfg.Server.TLS.Cert,
			TLSKey:    cfg.Server.TLS.Key,
			Timeout:   2 * time.Second,
		})
		if err != nil {
			logger.Error("mqtt connection failed", zap.Error(err))
			os.Exit(1)
		}
	}

	events := bus.New()
	var massClient *mass.Client
	var hassClient *hass.Client

	needsServer := moduleOnly != "embedded_mqtt" &&
		(cfg.Modules.Players.Enabled || cfg.Modules.Controls.Enabled)
	if needsServer {
		massClient = mass.NewClient(logger, cfg.MusicAssistant.URL(), cfg.MusicAssistant.Token)
		dispatcher := bridged.NewDispatcher(logger, events, massClient)
		massClient.SetEventCallback(func(kind string, data json.RawMessage) {
			dispatcher.HandleEvent(ctx, kind, data)
		},
			mass.EventConnected,
			mass.EventPlayerAdded,
			mass.EventPlayerChanged,
			mass.EventPlayerRemoved,
			mass.EventQueueUpdated,
			mass.EventQueueTimeUpdated,
		)
	}

	if cfg.Modules.Controls.Enabled && (moduleOnly == "" || moduleOnly == "controls") {
		hassClient = hass.NewClient(logger, cfg.HomeAssistant.WebsocketURL(), cfg.HomeAssistant.Token)
	}

	modules, err := buildModules(cfg, client, logger, massClient, hassClient, events, moduleOnly, skipEmbedded)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}

	if hassClient != nil {
		if err := hassClient.Connect(ctx); err != nil {
			logger.Error("home assistant connection failed", zap.Error(err))
			os.Exit(1)
		}
		defer hassClient.Close()
	}
	if massClient != nil {
		if err := massClient.Connect(ctx); err != nil {
			logger.Error("music assistant connection failed", zap.Error(err))
			os.Exit(1)
		}
		defer massClient.Close()
	}

	supervisor := bridged.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *bridged.Config, broker string, identity string, topicBase string, logLevel string, logFormat string, logOutput string) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if identity != "" {
		cfg.Server.Identity = identity
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if logOutput != "" {
		cfg.Server.LogOutput = logOutput
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = mab.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

func buildModules(cfg bridged.Config, client *mqttserver.Client, logger *zap.Logger, massClient *mass.Client, hassClient *hass.Client, events *bus.Bus, moduleOnly string, skipEmbedded bool) ([]bridged.ModuleRunner, error) {
	modules := []bridged.ModuleRunner{}
	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded {
		if moduleOnly == "" || moduleOnly == "embedded_mqtt" {
			mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
				Listen:         cfg.Modules.EmbeddedMQTT.Listen,
				AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
				Username:       cfg.Modules.EmbeddedMQTT.Username,
				Password:       cfg.Modules.EmbeddedMQTT.Password,
				TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
				TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
				TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
			})
			if err != nil {
				return nil, err
			}
			modules = append(modules, bridged.ModuleRunner{
				Name: "embedded_mqtt",
				Run:  mod.Run,
			})
		}
	}

	if cfg.Modules.Players.Enabled {
		if moduleOnly == "" || moduleOnly == "players" {
			mod := players.NewModule(logger, client, massClient, browse.New(logger), events, players.Config{
				TopicBase: cfg.Server.TopicBase,
			})
			modules = append(modules, bridged.ModuleRunner{
				Name: "players",
				Run:  mod.Run,
			})
		}
	}

	if cfg.Modules.Controls.Enabled {
		if moduleOnly == "" || moduleOnly == "controls" {
			mod := controls.NewModule(logger, client, massClient, hassClient, events, controls.Config{
				NodeID:         mab.ControlsNodeID(cfg.Server.Identity),
				TopicBase:      cfg.Server.TopicBase,
				PowerControls:  cfg.Modules.Controls.PowerControls,
				VolumeControls: cfg.Modules.Controls.VolumeControls,
			})
			modules = append(modules, bridged.ModuleRunner{
				Name: "controls",
				Run:  mod.Run,
			})
		}
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

func enabledModules(cfg bridged.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.Players.Enabled {
		out = append(out, "players")
	}
	if cfg.Modules.Controls.Enabled {
		out = append(out, "controls")
	}
	return out
}

func printResolvedConfig(cfg bridged.Config) {
	fmt.Fprintf(os.Stdout,
		"broker=%s identity=%s topic_base=%s log_level=%s log_format=%s log_output=%s music_assistant=%s\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.MusicAssistant.URL(),
	)
}

func embeddedBrokerURL(cfg bridged.Config) string {
	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	tlsEnabled := cfg.Modules.EmbeddedMQTT.TLSCert != "" || cfg.Modules.EmbeddedMQTT.TLSKey != "" || cfg.Modules.EmbeddedMQTT.TLSCA != ""
	return embeddedmqtt.BrokerURL(listen, tlsEnabled)
}

func startEmbeddedBroker(ctx context.Context, cfg bridged.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	})
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
