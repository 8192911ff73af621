package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/mochigome-git/plc-ping/internal/app/status"
	"github.com/mochigome-git/plc-ping/internal/monitor"
	"github.com/mochigome-git/plc-ping/internal/worker"
	"github.com/mochigome-git/plc-ping/pkg/config"
	"github.com/mochigome-git/plc-ping/pkg/mqtt"
	"github.com/mochigome-git/plc-ping/pkg/plc"
)

// Publisher is a monitor.Publisher that also owns a connection.
type Publisher interface {
	monitor.Publisher
	Close()
}

// Application probes every configured PLC on a schedule and reports the results
type Application struct {
	cfg       config.AppConfig
	logger    logrus.FieldLogger
	publisher Publisher
	monitor   *monitor.DeviceMonitor
	devices   []*plc.PLC
}

// Dialer opens the MQTT connection; swapped in tests.
type Dialer func(cfg config.AppConfig, logger logrus.FieldLogger) (MQTT.Client, error)

// DialMQTT picks TLS or plain MQTT the same way the config flags do.
func DialMQTT(cfg config.AppConfig, logger logrus.FieldLogger) (MQTT.Client, error) {
	mqtts, _ := strconv.ParseBool(cfg.MqttsStr)
	if mqtts {
		return mqtt.ECSNewMQTTClientWithTLS(cfg, logger)
	}
	return mqtt.NewMQTTClient(cfg.MqttHost, logger)
}

// NewApplication validates the config, builds a descriptor per PLC and connects the publisher
func NewApplication(cfg config.AppConfig, logger logrus.FieldLogger, dial Dialer) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.PLCs) == 0 {
		return nil, fmt.Errorf("no PLC configured: set PLC_HOST, PLC_TARGETS or PLC_DEVICES_FILE")
	}

	var publisher Publisher
	if cfg.MqttSkip || cfg.MqttHost == "" {
		logger.Info("MQTT disabled, probe results are only logged")
		publisher = mqtt.LogPublisher{Logger: logger}
	} else {
		if dial == nil {
			dial = DialMQTT
		}
		client, err := dial(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("init MQTT failed: %w", err)
		}
		publisher = mqtt.NewPublisher(client, cfg.MqttTopic, logger)
	}

	interval := time.Duration(cfg.MonitorIntervalMs) * time.Millisecond
	mon := monitor.NewDeviceMonitor(interval, publisher, logger)

	devices := make([]*plc.PLC, 0, len(cfg.PLCs))
	for _, plcCfg := range cfg.PLCs {
		p, err := plc.FromConfig(plcCfg, logger)
		if err != nil {
			publisher.Close()
			return nil, fmt.Errorf("plc %s: %w", plcCfg.Name, err)
		}
		mon.Register(p)
		devices = append(devices, p)
	}

	return &Application{
		cfg:       cfg,
		logger:    logger,
		publisher: publisher,
		monitor:   mon,
		devices:   devices,
	}, nil
}

// Monitor exposes the device monitor, e.g. for the status API.
func (a *Application) Monitor() *monitor.DeviceMonitor {
	return a.monitor
}

// Run starts the status API, worker pool and monitor loop until ctx ends
func (a *Application) Run(ctx context.Context) error {
	defer a.Close()

	var wg sync.WaitGroup
	if a.cfg.StatusPort > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := status.Start(ctx, a.cfg.StatusPort, a.monitor, a.logger); err != nil {
				a.logger.Errorf("status API stopped: %v", err)
			}
		}()
	}

	pool := worker.NewPool(a.cfg.MonitorWorkers, a.monitor.HandleResult, a.logger)
	pool.Start(ctx)

	a.monitor.Run(ctx, pool)

	a.logger.Info("Shutdown signal received")
	pool.Stop()
	wg.Wait()
	return nil
}

// Close disconnects the publisher
func (a *Application) Close() {
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
}
