package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time parses duration-valued variables
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for costs,
// durations for every timing knob of the admission and hold machinery.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    DBUser       string // database username
    DBPass       string // database password (optional)
    DBHost       string // database host address
    DBPort       string // database port number
    DBName       string // database name
    JWTSecret    string // secret used to sign JWTs
    AccessTTLMin int    // access token time-to-live in minutes
    BcryptCost   int    // bcrypt cost for password hashing
    AMQPURL      string // RabbitMQ connection URL (optional; notifications degrade to no-op)

    HoldTTL          time.Duration // seat hold lifetime before the sweep reclaims it
    PaymentWindow    time.Duration // deadline for the payment outcome after confirm
    SweepInterval    time.Duration // how often expired holds and stale bookings are reclaimed
    AdmitInterval    time.Duration // how often the admission controller opens new slots
    AdmitBatch       int           // sessions admitted per controller tick
    QueueDefaultWait time.Duration // wait estimate reported before any admission rate exists
    SessionTTL       time.Duration // sliding idle timeout for sessions
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Timing knobs are
// optional and fall back to defaults suited to a small deployment.
func Load() Config {
    return Config{
        Env:          must("APP_ENV"),                 // environment (dev/test/prod)
        Port:         must("APP_PORT"),                // port to bind the HTTP server
        DBUser:       must("DB_USER"),                 // database user
        DBPass:       os.Getenv("DB_PASS"),            // database password (empty allowed)
        DBHost:       must("DB_HOST"),                 // database host
        DBPort:       must("DB_PORT"),                 // database port
        DBName:       must("DB_NAME"),                 // database name
        JWTSecret:    must("JWT_SECRET"),              // secret used for signing JWTs
        AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"), // TTL for access tokens in minutes
        BcryptCost:   mustInt("BCRYPT_COST"),          // bcrypt cost factor
        AMQPURL:      os.Getenv("AMQP_URL"),           // broker URL (empty disables notifications)

        HoldTTL:          dur("HOLD_TTL", 2*time.Minute),
        PaymentWindow:    dur("PAYMENT_WINDOW", 2*time.Minute),
        SweepInterval:    dur("SWEEP_INTERVAL", 5*time.Second),
        AdmitInterval:    dur("ADMIT_INTERVAL", 2*time.Second),
        AdmitBatch:       intOr("ADMIT_BATCH", 25),
        QueueDefaultWait: dur("QUEUE_DEFAULT_WAIT", 30*time.Second),
        SessionTTL:       dur("SESSION_TTL", 24*time.Hour),
    }
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

// dur reads an optional duration variable, exiting on malformed input
// rather than silently running with the default.
func dur(key string, def time.Duration) time.Duration {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    d, err := time.ParseDuration(s)
    if err != nil {
        log.Fatalf("invalid duration for %s: %q", key, s)
    }
    return d
}

// intOr reads an optional integer variable with a default.
func intOr(key string, def int) int {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
