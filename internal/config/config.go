package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"
)

// Config holds the core runtime configuration.  Each field corresponds to
// an environment variable; optional ones fall back to a default.
type Config struct {
    Env            string        // APP_ENV: "dev", "test" or "prod"
    Port           string        // APP_PORT: HTTP port to listen on
    DBUser         string        // DB_USER
    DBPass         string        // DB_PASS (may be empty)
    DBHost         string        // DB_HOST
    DBPort         string        // DB_PORT
    DBName         string        // DB_NAME
    JWTSecret      string        // JWT_SECRET: HS256 signing key
    AccessTTLMin   int           // ACCESS_TOKEN_TTL_MIN
    RefreshTTLDays int           // REFRESH_TOKEN_TTL_DAYS
    BcryptCost     int           // BCRYPT_COST
    ReserveTimeout time.Duration // RESERVATION_TIMEOUT: bound on one reserve/cancel unit
    TxMaxAttempts  int           // TX_MAX_ATTEMPTS: runs of a unit aborted by deadlock
    AutoMigrate    bool          // DB_AUTO_MIGRATE: apply schema.sql at startup
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must(); a missing one ends the process.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"),
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),
        ReserveTimeout: envDur("RESERVATION_TIMEOUT", 5*time.Second),
        TxMaxAttempts:  envInt("TX_MAX_ATTEMPTS", 3),
        AutoMigrate:    envBool("DB_AUTO_MIGRATE", true),
    }
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return c.Env == "prod" || c.Env == "production" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
