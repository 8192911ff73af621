package mqtt

import (
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mochigome-git/plc-ping/pkg/config"
)

func logrusNull() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func configWithCerts(ca, cert, key string) config.AppConfig {
	return config.AppConfig{
		MqttHost:      "ssl://localhost:8883",
		ECScaCert:     ca,
		ECSclientCert: cert,
		ECSclientKey:  key,
	}
}
