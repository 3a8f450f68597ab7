package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Options struct {
	runAddr       string
	logLevel      string
	dataBaseDSN   string
	catalogFile   string
	flushInterval time.Duration
	sessionTTL    time.Duration
	freeShipping  string
	shippingFee   string
	randomSeed    int64
}

func NewOptions() *Options {
	return new(Options)
}

// ParseFlags handles command line arguments
// and stores their values in the corresponding variables.
func (o *Options) ParseFlags() {
	// Load environment variables from the .env file
	loadEnvFile()

	if err := o.Parse(os.Args[0], os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// Parse registers the options on a fresh flag set, using the environment
// for defaults, and parses args into it.
func (o *Options) Parse(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&o.runAddr, "a", getEnvOrDefault("RUN_ADDRESS", ":8080"), "address and port to run server")
	fs.StringVar(&o.logLevel, "l", getEnvOrDefault("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&o.dataBaseDSN, "d", getEnvOrDefault("DATABASE_URI", ""), "database connection string")
	fs.StringVar(&o.catalogFile, "c", getEnvOrDefault("CATALOG_FILE", ""), "catalog YAML file, built-in catalog when empty")
	fs.StringVar(&o.freeShipping, "s", getEnvOrDefault("FREE_SHIPPING_THRESHOLD", "100"), "subtotal from which shipping is free")
	fs.StringVar(&o.shippingFee, "p", getEnvOrDefault("SHIPPING_FEE", "15"), "shipping fee below the threshold")

	flush, err := durationFromEnv("FLUSH_INTERVAL", 30*time.Second)
	if err != nil {
		return err
	}
	fs.DurationVar(&o.flushInterval, "f", flush, "interval between cart snapshots")

	ttl, err := durationFromEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return err
	}
	fs.DurationVar(&o.sessionTTL, "t", ttl, "idle time after which a session is dropped")

	var seed int64
	if v := getEnvOrDefault("RANDOM_SEED", ""); v != "" {
		if _, err := fmt.Sscan(v, &seed); err != nil {
			return fmt.Errorf("invalid RANDOM_SEED %q: %w", v, err)
		}
	}
	fs.Int64Var(&o.randomSeed, "r", seed, "seed for assistant suggestions, time based when 0")

	// parse the arguments passed to the server into registered variables
	if err := fs.Parse(args); err != nil {
		return err
	}

	return o.validate()
}

func (o *Options) validate() error {
	if _, err := decimal.NewFromString(o.freeShipping); err != nil {
		return fmt.Errorf("invalid free shipping threshold %q: %w", o.freeShipping, err)
	}
	if _, err := decimal.NewFromString(o.shippingFee); err != nil {
		return fmt.Errorf("invalid shipping fee %q: %w", o.shippingFee, err)
	}
	if o.flushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %s", o.flushInterval)
	}
	if o.sessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", o.sessionTTL)
	}
	return nil
}

func (o *Options) RunAddr() string {
	return o.runAddr
}

func (o *Options) LogLevel() string {
	return o.logLevel
}

func (o *Options) DataBaseDSN() string {
	return o.dataBaseDSN
}

func (o *Options) CatalogFile() string {
	return o.catalogFile
}

func (o *Options) FlushInterval() time.Duration {
	return o.flushInterval
}

func (o *Options) SessionTTL() time.Duration {
	return o.sessionTTL
}

func (o *Options) FreeShippingThreshold() decimal.Decimal {
	return decimal.RequireFromString(o.freeShipping)
}

func (o *Options) ShippingFee() decimal.Decimal {
	return decimal.RequireFromString(o.shippingFee)
}

// RandomSeed returns the configured seed, or one derived from the clock.
func (o *Options) RandomSeed() int64 {
	if o.randomSeed != 0 {
		return o.randomSeed
	}
	return time.Now().UnixNano()
}

// getEnvOrDefault reads an environment variable or returns a default value if the variable is not set or is empty.
func getEnvOrDefault(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func durationFromEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v := getEnvOrDefault(key, "")
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from the first .env file found
// in the working directory or two levels above it.
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	for _, envPath := range []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(cwd, "..", "..", ".env"),
	} {
		if err := godotenv.Load(envPath); err == nil {
			log.Printf(".env file loaded from %s", envPath)
			return
		}
	}
	log.Printf("No .env file found, proceeding without it")
}
