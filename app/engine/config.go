package engine

import (
	"strconv"
	"strings"

	"github.com/clickarena/engine/pkg/auction"
	"github.com/clickarena/engine/pkg/fraud"
	"github.com/clickarena/engine/pkg/rotation"
	"github.com/clickarena/engine/pkg/utils"
)

// ServiceConfig is the process-level configuration, read from the
// environment the same way every engine tunable is.
type ServiceConfig struct {
	Addr            string
	DBPath          string // empty selects the in-memory store
	RedisOn         bool
	JWTSecret       []byte
	AdminToken      string
	SweepSpec       string // cron spec with seconds field
	RotationOn      bool
	ProgressWorkers int
}

func LoadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Addr:            utils.Env("ADDR", ":3001"),
		DBPath:          utils.Env("DB_PATH", "engine.db"),
		RedisOn:         utils.EnvBool("REDIS_ENABLED", false),
		JWTSecret:       []byte(utils.Env("JWT_SECRET", "")),
		AdminToken:      utils.Env("ADMIN_TOKEN", ""),
		SweepSpec:       utils.Env("SWEEP_CRON", "*/5 * * * * *"),
		RotationOn:      utils.EnvBool("ROTATION_CRON_ENABLED", true),
		ProgressWorkers: utils.EnvInt("PROGRESS_WORKERS", 4),
	}
}

// LoadEngineConfig reads the click pipeline tunables.
func LoadEngineConfig() auction.Config {
	cfg := auction.DefaultConfig()
	cfg.CreditCost = int64(utils.EnvInt("CREDIT_COST", int(cfg.CreditCost)))
	cfg.FinalPhaseThreshold = utils.EnvDuration("FINAL_PHASE_THRESHOLD", cfg.FinalPhaseThreshold)
	cfg.ResetWindow = utils.EnvDuration("RESET_WINDOW", cfg.ResetWindow)
	cfg.LockTimeout = utils.EnvDuration("LOCK_TIMEOUT", cfg.LockTimeout)
	return cfg
}

// LoadFraudConfig reads the fraud heuristics tunables.
func LoadFraudConfig() fraud.Config {
	cfg := fraud.DefaultConfig()
	cfg.Window = utils.EnvDuration("FRAUD_WINDOW", cfg.Window)
	cfg.RateCeiling = utils.EnvInt("FRAUD_RATE_CEILING", cfg.RateCeiling)
	cfg.GameCeiling = utils.EnvInt("FRAUD_GAME_CEILING", cfg.GameCeiling)
	return cfg
}

// LoadRotationConfig reads the rotation tunables. ROTATION_HOURS is a comma
// separated list of hours in the rotation timezone.
func LoadRotationConfig() rotation.Config {
	cfg := rotation.DefaultConfig()
	cfg.BatchSize = utils.EnvInt("ROTATION_BATCH_SIZE", cfg.BatchSize)
	cfg.InitialDuration = utils.EnvDuration("GAME_INITIAL_DURATION", cfg.InitialDuration)
	cfg.Timezone = utils.Env("ROTATION_TZ", cfg.Timezone)
	cfg.StaleAfter = utils.EnvDuration("ROTATION_STALE_AFTER", cfg.StaleAfter)
	if raw := utils.Env("ROTATION_HOURS", ""); raw != "" {
		var hours []int
		for _, part := range strings.Split(raw, ",") {
			if h, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && h >= 0 && h < 24 {
				hours = append(hours, h)
			}
		}
		if len(hours) > 0 {
			cfg.Hours = hours
		}
	}
	return cfg
}

// RotationCronSpec derives the cron line (with seconds field) that fires at
// minute zero of each configured rotation hour.
func RotationCronSpec(cfg rotation.Config) string {
	if len(cfg.Hours) == 0 {
		return "0 0 */3 * * *"
	}
	parts := make([]string, len(cfg.Hours))
	for i, h := range cfg.Hours {
		parts[i] = strconv.Itoa(h)
	}
	return "0 0 " + strings.Join(parts, ",") + " * * *"
}
