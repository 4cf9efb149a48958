package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The struct is built once at startup and passed
// by value to the components that need it; nothing reads the environment
// after Load returns.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	JWTIssuer      string // issuer claim stamped on and required from every token
	PreAuthScope   string // scope literal granted after password login
	AuthScope      string // scope literal granted after code validation
	ClaimRoles     string // name of the roles claim in the token
	ClaimScope     string // name of the scope claim in the token
	ClaimSession   string // name of the session-id claim in the token
	AccessTTLMin   int    // access token time-to-live in minutes
	SessionTTLDays int    // refresh session time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
	Cookie         CookieConfig
}

// CookieConfig describes how the access-token cookie is written.  All
// values are deployment-specific; the defaults suit local development.
type CookieConfig struct {
	Name     string // cookie name carrying the signed token
	Path     string // cookie path
	Secure   bool   // require HTTPS
	HTTPOnly bool   // hide from client-side scripts
	MaxAge   int    // lifetime in seconds
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Scope literals,
// claim names and cookie settings have sensible defaults and may be left
// unset.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		JWTIssuer:      must("JWT_ISSUER"),
		PreAuthScope:   envStr("SCOPE_PRE_AUTH", "pre_auth"),
		AuthScope:      envStr("SCOPE_AUTH", "auth"),
		ClaimRoles:     envStr("CLAIM_ROLES", "roles"),
		ClaimScope:     envStr("CLAIM_SCOPE", "scope"),
		ClaimSession:   envStr("CLAIM_SESSION", "session_id"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		SessionTTLDays: mustInt("REFRESH_SESSION_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),
		Cookie: CookieConfig{
			Name:     envStr("COOKIE_NAME", "token"),
			Path:     envStr("COOKIE_PATH", "/"),
			Secure:   envBool("COOKIE_SECURE", false),
			HTTPOnly: envBool("COOKIE_HTTPONLY", true),
			MaxAge:   envInt("COOKIE_MAX_AGE", 1800),
		},
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
