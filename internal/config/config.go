package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
    "strings"  // strings helps normalize configured identities
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations and costs.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    BaseURL        string // public base URL used when building password-reset links
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time‑to‑live in minutes
    RefreshTTLDays int    // refresh token time‑to‑live in days
    BcryptCost     int    // bcrypt cost for password hashing

    Superadmin Superadmin // configuration-defined superadmin identity
}

// Superadmin describes the superadmin account that is defined out-of-band in
// the environment rather than through registration.  It may or may not exist
// as a durable row in the users table; when no row exists the reserved
// sentinel id -1 is used in issued tokens.  Login against these credentials
// is checked before any database lookup.
type Superadmin struct {
    Username string // login identifier, matched exactly
    Password string // plaintext password from the environment, matched exactly
    Email    string // email placed into claims; normalized to contain an '@'
}

// Configured reports whether superadmin credentials were provided.  When they
// were not, the short-circuit login path is disabled entirely.
func (s Superadmin) Configured() bool {
    return s.Username != "" && s.Password != ""
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:            must("APP_ENV"),             // environment (dev/test/prod)
        Port:           must("APP_PORT"),            // port to bind the HTTP server
        BaseURL:        envStr("APP_BASE_URL", "http://localhost:8080"),
        DBUser:         must("DB_USER"),             // database user
        DBPass:         os.Getenv("DB_PASS"),        // database password (empty allowed)
        DBHost:         must("DB_HOST"),             // database host
        DBPort:         must("DB_PORT"),             // database port
        DBName:         must("DB_NAME"),             // database name
        JWTSecret:      must("JWT_SECRET"),          // secret used for signing JWTs
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),   // TTL for access tokens in minutes
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"), // TTL for refresh tokens in days
        BcryptCost:     mustInt("BCRYPT_COST"),      // bcrypt cost factor
        Superadmin: Superadmin{
            Username: os.Getenv("SUPERADMIN_USERNAME"),
            Password: os.Getenv("SUPERADMIN_PASSWORD"),
            Email:    os.Getenv("SUPERADMIN_EMAIL"),
        },
    }
    // The claims bundle always carries an email; fall back to the username
    // and force a parseable address when the configured value has no '@'.
    if cfg.Superadmin.Email == "" {
        cfg.Superadmin.Email = cfg.Superadmin.Username
    }
    if cfg.Superadmin.Email != "" && !strings.Contains(cfg.Superadmin.Email, "@") {
        cfg.Superadmin.Email += "@example.com"
    }
    return cfg
}

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
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
