package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"
	"github.com/shiftworks/assignment-service/internal/constants"
	"github.com/shiftworks/assignment-service/internal/utils"
)

type Config struct {
	OrganizationName    string
	AppName             string
	AppPort             string
	AppUrl              string
	Env                 string
	DBUrl               string
	SendgridAPIKey      string
	TokenValidity       time.Duration
	SettlementBatchSize int
	UniqueRunNumber     string

	LDFlag_ReservePendingWithdrawals   bool
	LDFlag_SettlementReconcilerEnabled bool
	LDFlag_SendgridFromEmail           string
	LDFlag_SendgridSandboxMode         bool
	LDFlag_CORSHighSecurity            bool
}

// Deployment environments.
const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	OrganizationName    = "ShiftWorks"
	LDConnectionTimeout = 5 * time.Second
	defaultFromEmail    = "no-reply@shiftworks.jp"
)

// Set with -ldflags at build time.
var (
	AppName             string
	UniqueRunNumber     string
	LDServerContextKey  = "assignment-service"
	LDServerContextKind = "service"
)

// flags holds the LaunchDarkly-controlled values with their fallbacks.
type flags struct {
	reservePendingWithdrawals   bool
	settlementReconcilerEnabled bool
	sendgridFromEmail           string
	sendgridSandboxMode         bool
	corsHighSecurity            bool
}

func defaultFlags() flags {
	return flags{
		reservePendingWithdrawals:   true,
		settlementReconcilerEnabled: true,
		sendgridFromEmail:           defaultFromEmail,
		sendgridSandboxMode:         false,
		corsHighSecurity:            true,
	}
}

func LoadConfig() *Config {
	if AppName == "" {
		AppName = "assignment-service"
	}

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		utils.Logger.WithError(err).Warn("Failed to parse .env file")
	}

	utils.Logger.Info("Loading config for app: ", AppName)

	env := requireEnv("ENV")
	appPort := requireEnv("APP_PORT")
	appUrl := requireEnv("APP_URL")

	secrets := loadSecrets(env)

	dbURL := firstNonEmpty(secrets["DB_URL"], os.Getenv("DB_URL"))
	if dbURL == "" {
		utils.Logger.Fatal("DB_URL not found in BWS secrets or environment")
	}
	ldSDKKey := firstNonEmpty(secrets["LD_SDK_KEY"], os.Getenv("LD_SDK_KEY"))
	sendgridAPIKey := firstNonEmpty(secrets["SENDGRID_API_KEY"], os.Getenv("SENDGRID_API_KEY"))
	if sendgridAPIKey == "" {
		utils.Logger.Warn("SENDGRID_API_KEY not set; operator emails will only be logged")
	}

	tokenValidity := constants.DefaultTokenValidity
	if v := os.Getenv("TOKEN_VALIDITY_MINUTES"); v != "" {
		mins, err := strconv.Atoi(v)
		if err != nil || mins <= 0 {
			utils.Logger.Fatalf("TOKEN_VALIDITY_MINUTES must be a positive integer, got %q", v)
		}
		tokenValidity = time.Duration(mins) * time.Minute
	}

	batchSize := constants.SettlementBatchSize
	if v := os.Getenv("SETTLEMENT_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			utils.Logger.Fatalf("SETTLEMENT_BATCH_SIZE must be a positive integer, got %q", v)
		}
		batchSize = n
	}

	f := loadFlags(ldSDKKey)

	return &Config{
		OrganizationName:                   OrganizationName,
		AppName:                            AppName,
		AppPort:                            appPort,
		AppUrl:                             appUrl,
		Env:                                env,
		DBUrl:                              dbURL,
		SendgridAPIKey:                     sendgridAPIKey,
		TokenValidity:                      tokenValidity,
		SettlementBatchSize:                batchSize,
		UniqueRunNumber:                    UniqueRunNumber,
		LDFlag_ReservePendingWithdrawals:   f.reservePendingWithdrawals,
		LDFlag_SettlementReconcilerEnabled: f.settlementReconcilerEnabled,
		LDFlag_SendgridFromEmail:           f.sendgridFromEmail,
		LDFlag_SendgridSandboxMode:         f.sendgridSandboxMode,
		LDFlag_CORSHighSecurity:            f.corsHighSecurity,
	}
}

func (c *Config) Close() {}

func requireEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		utils.Logger.Fatalf("%s env var is missing", key)
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// loadSecrets pulls "<app>-<env>" from Bitwarden when BWS_ACCESS_TOKEN is
// set. Without it, secrets come from the environment.
func loadSecrets(env string) map[string]string {
	if os.Getenv("BWS_ACCESS_TOKEN") == "" {
		utils.Logger.Info("BWS_ACCESS_TOKEN not set; reading secrets from environment")
		return map[string]string{}
	}

	client, err := utils.NewBWSSecretsClient(os.Getenv("BWS_ORGANIZATION_ID"))
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to initialize BWSSecretsClient")
	}
	defer client.Close()

	projectName := fmt.Sprintf("%s-%s", AppName, env)
	secrets, err := client.GetBWSSecrets(projectName)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to fetch app secrets from BWS")
	}
	return secrets
}

func loadFlags(sdkKey string) flags {
	f := defaultFlags()
	if sdkKey == "" {
		utils.Logger.Warn("LD_SDK_KEY not set; using default feature flags")
		return f
	}

	ldClient, err := ld.MakeClient(sdkKey, LDConnectionTimeout)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to create LaunchDarkly client")
	}
	defer ldClient.Close()

	ctx := ldcontext.NewWithKind(ldcontext.Kind(LDServerContextKind), LDServerContextKey)

	boolFlag := func(key string, fallback bool) bool {
		v, err := ldClient.BoolVariation(key, ctx, fallback)
		if err != nil {
			utils.Logger.WithError(err).Fatalf("Error retrieving %s flag", key)
		}
		utils.Logger.Debugf("%s flag: %t", key, v)
		return v
	}

	f.reservePendingWithdrawals = boolFlag("reserve_pending_withdrawals", f.reservePendingWithdrawals)
	f.settlementReconcilerEnabled = boolFlag("settlement_reconciler_enabled", f.settlementReconcilerEnabled)
	f.sendgridSandboxMode = boolFlag("sendgrid_sandbox_mode", f.sendgridSandboxMode)
	f.corsHighSecurity = boolFlag("cors_high_security", f.corsHighSecurity)

	from, err := ldClient.StringVariation("sendgrid_from_email", ctx, f.sendgridFromEmail)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving sendgrid_from_email flag")
	}
	if from != "" {
		f.sendgridFromEmail = from
	}
	return f
}
