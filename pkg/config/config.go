package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	// App-level
	LogLevel      string // LOG_LEVEL: debug, info, warn, error
	LogFile       string // optional copy of the log output
	StatusPort    int    // HTTP status API port, 0 disables it
	MqttHost      string // mqtthost stores the MQTT broker's hostname
	MqttTopic     string // topic prefix, the PLC name is appended
	MqttsStr      string // Turn on for TLS connection
	MqttSkip      bool   // Skip Mqtt, results are only logged
	ECScaCert     string // ESC verion direct read from params store
	ECSclientCert string // ESC verion direct read from params store
	ECSclientKey  string // ESC verion direct read from params store

	// Monitor-level
	MonitorIntervalMs int // time between two heartbeat rounds
	MonitorWorkers    int // concurrent probes

	// PLC-level
	DevicesFile string
	PLCs        []PLCConfig
}

type PLCConfig struct {
	Name      string `yaml:"name"`       // label used in logs, topics and the status API
	Host      string `yaml:"host"`       // IPv4 literal or hostname
	Auxiliary int    `yaml:"auxiliary"`  // carried as-is, meaning not yet assigned
	Attempts  int    `yaml:"attempts"`   // probe attempts per check
	TimeoutMs int    `yaml:"timeout_ms"` // per-attempt timeout
	Method    string `yaml:"method"`     // auto, icmp, tcp, enip
	Port      int    `yaml:"port"`       // tcp/enip port, 44818 when 0
}

const (
	DefaultAttempts   = 5
	DefaultTimeoutMs  = 1000
	DefaultIntervalMs = 5000
	DefaultWorkers    = 4
	DefaultPort       = 44818
)

var knownMethods = map[string]bool{"": true, "auto": true, "icmp": true, "tcp": true, "enip": true}

// Load initializes all configuration variables from environment variables
func Load(files ...string) (AppConfig, error) {
	// Try to load from the specified file first
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			log.Printf("Info: %s not found or failed to load, falling back to system environment", file)
		}
	}

	cfg := AppConfig{
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
		StatusPort:        GetEnvAsInt("STATUS_PORT", 6060),
		MqttHost:          os.Getenv("MQTT_HOST"),
		MqttTopic:         os.Getenv("MQTT_TOPIC"),
		MqttsStr:          os.Getenv("MQTTS_ON"),
		MqttSkip:          strings.ToLower(os.Getenv("MQTT_SKIP")) == "true",
		ECScaCert:         os.Getenv("ECS_MQTT_CA_CERTIFICATE"),
		ECSclientCert:     os.Getenv("ECS_MQTT_CLIENT_CERTIFICATE"),
		ECSclientKey:      os.Getenv("ECS_MQTT_PRIVATE_KEY"),
		MonitorIntervalMs: GetEnvAsInt("MONITOR_INTERVAL_MS", DefaultIntervalMs),
		MonitorWorkers:    GetEnvAsInt("MONITOR_WORKERS", DefaultWorkers),
		DevicesFile:       os.Getenv("PLC_DEVICES_FILE"),
	}

	if mainPLC, ok := plcFromEnv("", "main"); ok {
		cfg.PLCs = append(cfg.PLCs, mainPLC)
	}
	if secondaryPLC, ok := plcFromEnv("SEC_", "secondary"); ok {
		cfg.PLCs = append(cfg.PLCs, secondaryPLC)
	}

	targets, err := ParseTargets(os.Getenv("PLC_TARGETS"))
	if err != nil {
		return cfg, fmt.Errorf("PLC_TARGETS: %w", err)
	}
	cfg.PLCs = append(cfg.PLCs, targets...)

	if cfg.DevicesFile != "" {
		fromFile, err := LoadDevicesFile(cfg.DevicesFile)
		if err != nil {
			return cfg, err
		}
		cfg.PLCs = append(cfg.PLCs, fromFile...)
	}

	return cfg, nil
}

// plcFromEnv reads one PLC block; prefix is "" for the main PLC and "SEC_" for the secondary.
func plcFromEnv(prefix, defaultName string) (PLCConfig, bool) {
	host := os.Getenv(prefix + "PLC_HOST")
	if host == "" {
		return PLCConfig{}, false
	}
	return PLCConfig{
		Name:      GetEnv(prefix+"PLC_NAME", defaultName),
		Host:      host,
		Auxiliary: GetEnvAsInt(prefix+"PLC_AUX", 0),
		Attempts:  GetEnvAsInt(prefix+"PLC_ATTEMPTS", DefaultAttempts),
		TimeoutMs: GetEnvAsInt(prefix+"PLC_TIMEOUT_MS", DefaultTimeoutMs),
		Method:    os.Getenv(prefix + "PLC_PROBE_METHOD"),
		Port:      GetEnvAsInt(prefix+"PLC_PROBE_PORT", DefaultPort),
	}, true
}

// Validate checks every PLC entry and the monitor settings.
func (c AppConfig) Validate() error {
	if c.MonitorIntervalMs <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL_MS must be positive, got %d", c.MonitorIntervalMs)
	}
	if c.MonitorWorkers <= 0 {
		return fmt.Errorf("MONITOR_WORKERS must be positive, got %d", c.MonitorWorkers)
	}
	for i, p := range c.PLCs {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("plc %d (%s): %w", i, p.Name, err)
		}
	}
	return nil
}

func (p PLCConfig) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("host is empty")
	}
	if p.Attempts < 0 {
		return fmt.Errorf("attempts must not be negative, got %d", p.Attempts)
	}
	if p.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms must not be negative, got %d", p.TimeoutMs)
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("port out of range: %d", p.Port)
	}
	if !knownMethods[strings.ToLower(strings.TrimSpace(p.Method))] {
		return fmt.Errorf("unknown probe method %q", p.Method)
	}
	return nil
}

// GetEnv returns the variable or defaultValue when it is unset or empty.
func GetEnv(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt gets the value of an environment variable as an int
func GetEnvAsInt(name string, defaultValue int) int {
	if value, exists := os.LookupEnv(name); exists {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}
