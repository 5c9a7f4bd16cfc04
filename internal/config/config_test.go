package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsUnbalancedBandWeights(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Host: "localhost", User: "u", DBName: "d"},
		Business: BusinessConfig{StartHour: 9, EndHour: 18},
		Bands:    BandsConfig{PeakWeight: 0.6, NormalWeight: 0.6, LowWeight: 0.1},
		Schedule: ScheduleConfig{DispatchInterval: 1, EngagementInterval: 1},
		Plan:     PlanConfig{GraceWindow: 1, FireWindow: 1},
		Score:    ScoreConfig{Window: 1},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaultShapedConfig(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Host: "localhost", User: "u", DBName: "d"},
		Business: BusinessConfig{StartHour: 9, EndHour: 18},
		Bands:    BandsConfig{PeakWeight: 0.6, NormalWeight: 0.3, LowWeight: 0.1},
		Schedule: ScheduleConfig{DispatchInterval: 1, EngagementInterval: 1},
		Plan:     PlanConfig{GraceWindow: 1, FireWindow: 1},
		Score:    ScoreConfig{Window: 1},
	}
	assert.NoError(t, cfg.Validate())
}
