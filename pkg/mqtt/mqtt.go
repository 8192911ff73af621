package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/mochigome-git/plc-ping/pkg/config"
	"github.com/mochigome-git/plc-ping/pkg/probe"
)

const publishTimeout = 5 * time.Second

func clientOptions(host string) *MQTT.ClientOptions {
	return MQTT.NewClientOptions().
		AddBroker(host).
		SetClientID("plc-ping-" + uuid.NewString()).
		SetAutoReconnect(true)
}

func connect(opts *MQTT.ClientOptions, host string, logger logrus.FieldLogger) (MQTT.Client, error) {
	mqttclient := MQTT.NewClient(opts)
	if token := mqttclient.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT server %s: %w", host, token.Error())
	}
	logger.Infof("Connected to MQTT server %s successfully", host)
	return mqttclient, nil
}

func NewMQTTClient(mqttHost string, logger logrus.FieldLogger) (MQTT.Client, error) {
	return connect(clientOptions(mqttHost), mqttHost, logger)
}

func ECSNewMQTTClientWithTLS(cfg config.AppConfig, logger logrus.FieldLogger) (MQTT.Client, error) {
	// Load client certificate and key
	cert, err := tls.X509KeyPair([]byte(cfg.ECSclientCert), []byte(cfg.ECSclientKey))
	if err != nil {
		return nil, fmt.Errorf("load client certificate/key: %w", err)
	}

	tlsConfig := &tls.Config{
		RootCAs:      x509.NewCertPool(),
		Certificates: []tls.Certificate{cert},
	}
	if !tlsConfig.RootCAs.AppendCertsFromPEM([]byte(cfg.ECScaCert)) {
		return nil, fmt.Errorf("no CA certificate found in ECS_MQTT_CA_CERTIFICATE")
	}

	return connect(clientOptions(cfg.MqttHost).SetTLSConfig(tlsConfig), cfg.MqttHost, logger)
}

// Publisher sends probe results to topic prefix + PLC name.
type Publisher struct {
	client MQTT.Client
	topic  string
	logger logrus.FieldLogger
}

func NewPublisher(client MQTT.Client, topic string, logger logrus.FieldLogger) *Publisher {
	return &Publisher{client: client, topic: topic, logger: logger}
}

// Encode renders a result as the JSON message body.
func Encode(res probe.Result) ([]byte, error) {
	return jsoniter.Marshal(res)
}

func (p *Publisher) Publish(res probe.Result) error {
	payload, err := Encode(res)
	if err != nil {
		return fmt.Errorf("encode result for %s: %w", res.Name, err)
	}

	topic := p.topic + res.Name
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// LogPublisher replaces MQTT when MQTT_SKIP is set.
type LogPublisher struct {
	Logger logrus.FieldLogger
}

func (p LogPublisher) Publish(res probe.Result) error {
	p.Logger.WithFields(logrus.Fields{
		"plc":       res.Name,
		"address":   res.Address,
		"reachable": res.Reachable,
		"attempts":  res.Attempts,
		"rtt":       res.RTT,
	}).Debug("probe result")
	return nil
}

func (p LogPublisher) Close() {}
