package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type devicesFile struct {
	PLCs []PLCConfig `yaml:"plcs"`
}

// LoadDevicesFile reads a YAML list of PLCs:
//
//	plcs:
//	  - name: press-1
//	    host: 192.168.0.10
//	    attempts: 3
func LoadDevicesFile(path string) ([]PLCConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read devices file: %w", err)
	}

	var f devicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse devices file %s: %w", path, err)
	}

	for i := range f.PLCs {
		applyDefaults(&f.PLCs[i])
	}
	return f.PLCs, nil
}

// ParseTargets parses "name,host,aux,attempts;name,host,aux,attempts".
// aux and attempts may be omitted.
func ParseTargets(s string) ([]PLCConfig, error) {
	var plcs []PLCConfig
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ",")
		if len(parts) < 2 || len(parts) > 4 {
			return nil, fmt.Errorf("invalid target %q: want name,host[,aux[,attempts]]", entry)
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		p := PLCConfig{Name: parts[0], Host: parts[1]}
		if len(parts) > 2 && parts[2] != "" {
			aux, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("invalid auxiliary value in %q: %w", entry, err)
			}
			p.Auxiliary = aux
		}
		if len(parts) > 3 && parts[3] != "" {
			attempts, err := strconv.Atoi(parts[3])
			if err != nil {
				return nil, fmt.Errorf("invalid attempts in %q: %w", entry, err)
			}
			p.Attempts = attempts
		}

		applyDefaults(&p)
		plcs = append(plcs, p)
	}
	return plcs, nil
}

func applyDefaults(p *PLCConfig) {
	if p.Name == "" {
		p.Name = p.Host
	}
	if p.Attempts == 0 {
		p.Attempts = DefaultAttempts
	}
	if p.TimeoutMs == 0 {
		p.TimeoutMs = DefaultTimeoutMs
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
}
