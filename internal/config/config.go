package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CONCORD_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CONCORD_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func ServerPort() int {
	return getInt("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// OpenAIBaseURL overrides the embeddings endpoint, for proxies and
// compatible servers.
func OpenAIBaseURL() string {
	return os.Getenv("OPENAI_BASE_URL")
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "mock" if not set.
// Valid values: openai, mock, lexical
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "mock"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	if EmbeddingProvider() == "openai" {
		return OpenAIAPIKey()
	}
	return ""
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps := getFloat("RATE_LIMIT_RPS", 100)
	if rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst := getInt("RATE_LIMIT_BURST", 20)
	if burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// OperatorDIDs lists the identities allowed to adjudicate disputes and
// slashing events.
func OperatorDIDs() []string {
	var out []string
	for _, d := range strings.Split(os.Getenv("OPERATOR_DIDS"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// SignatureMaxSkew bounds how far a signed request's timestamp may drift.
func SignatureMaxSkew() time.Duration {
	return getDuration("SIGNATURE_MAX_SKEW", 5*time.Minute)
}

func TrustMaxHops() int {
	h := getInt("TRUST_MAX_HOPS", 3)
	if h <= 0 {
		return 3
	}
	return h
}

func CorroborationPolicy() domain.CorroborationPolicy {
	p := domain.DefaultCorroborationPolicy()
	p.SimilarityThreshold = getFloat("SIMILARITY_THRESHOLD", p.SimilarityThreshold)
	p.CorroborationThreshold = getInt("CORROBORATION_THRESHOLD", p.CorroborationThreshold)
	p.RequireDiversity = getBool("CORROBORATION_REQUIRE_DIVERSITY", p.RequireDiversity)
	return p
}

func RevealDelay() time.Duration {
	return time.Duration(getInt("REVEAL_DELAY_SECONDS", 60)) * time.Second
}

func RevealWindow() time.Duration {
	m := getInt("REVEAL_WINDOW_MINUTES", 60)
	if m <= 0 {
		m = 60
	}
	return time.Duration(m) * time.Minute
}

func DisputePolicy() domain.DisputePolicy {
	p := domain.DefaultDisputePolicy()
	p.BaseStake = getFloat("DISPUTE_BASE_STAKE", p.BaseStake)
	p.QualityPenaltyThreshold = getFloat("DISPUTE_QUALITY_PENALTY_THRESHOLD", p.QualityPenaltyThreshold)
	p.QualityPenaltyMultiplier = getFloat("DISPUTE_QUALITY_PENALTY_MULTIPLIER", p.QualityPenaltyMultiplier)
	p.MinQuality = getFloat("DISPUTE_MIN_QUALITY", p.MinQuality)
	p.GraceFilings = getInt("DISPUTE_GRACE_FILINGS", p.GraceFilings)
	return p
}

func AppealWindow() time.Duration {
	h := getInt("SLASHING_APPEAL_WINDOW_HOURS", 24)
	if h <= 0 {
		h = 24
	}
	return time.Duration(h) * time.Hour
}

// SlashingAutoExecute enables executing matured slashing events from the
// sweeper.
func SlashingAutoExecute() bool {
	return getBool("SLASHING_AUTO_EXECUTE", true)
}

func SweepInterval() time.Duration {
	return getDuration("SWEEP_INTERVAL", time.Minute)
}
