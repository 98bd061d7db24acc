// Package config provides functionality for managing configuration options
// for the application using command-line flags, environment variables and
// a JSON settings file.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/credself/credstore/internal/action"
	"github.com/credself/credstore/internal/models"
)

// StorageOptions holds the ordered backend preference lists for one
// secret type. Read and write preferences are configured independently.
type StorageOptions struct {
	// ReadPreference is tried in order until a backend has a record.
	ReadPreference []models.BackendKind `json:"readPreference"`
	// WritePreference is written in full on every write and clear.
	WritePreference []models.BackendKind `json:"writePreference"`
}

// DirectoryOptions holds directory connection and attribute settings.
type DirectoryOptions struct {
	// URL is the directory server address (ldap:// or ldaps://).
	URL string `json:"url"`
	// BindDN and BindPassword authenticate the service account.
	BindDN       string `json:"bindDn"`
	BindPassword string `json:"bindPassword"`
	// GuidAttribute carries the user's stable surrogate identifier.
	GuidAttribute string `json:"guidAttribute"`
	// ResponseAttribute and OtpAttribute hold records for the
	// general-purpose attribute backend.
	ResponseAttribute string `json:"responseAttribute"`
	OtpAttribute      string `json:"otpAttribute"`
	// NativeResponseAttribute, NativeOtpAttribute and
	// NativeTimestampAttribute belong to the vendor extension backend.
	NativeResponseAttribute  string `json:"nativeResponseAttribute"`
	NativeOtpAttribute       string `json:"nativeOtpAttribute"`
	NativeTimestampAttribute string `json:"nativeTimestampAttribute"`
}

// OtpOptions holds the one-time-password parameters.
type OtpOptions struct {
	Issuer          string `json:"issuer"`
	Algorithm       string `json:"algorithm"`
	Digits          int    `json:"digits"`
	PeriodSeconds   int    `json:"periodSeconds"`
	PastIntervals   int    `json:"pastIntervals"`
	FutureIntervals int    `json:"futureIntervals"`
	SecretBytes     int    `json:"secretBytes"`

	RecoveryCodesEnabled   bool   `json:"recoveryCodesEnabled"`
	RecoveryCodeCount      int    `json:"recoveryCodeCount"`
	RecoveryCodeLength     int    `json:"recoveryCodeLength"`
	RecoveryHashAlgorithm  string `json:"recoveryHashAlgorithm"`
	RecoveryHashIterations int    `json:"recoveryHashIterations"`
}

// AnswerHashOptions controls how accepted challenge answers are stored.
type AnswerHashOptions struct {
	Algorithm  string `json:"algorithm"`
	Iterations int    `json:"iterations"`
}

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"port"`

	// LogLevel selects the logging verbosity ("debug", "info", ...).
	LogLevel string `json:"logLevel"`

	// DatabaseDSN holds the connection string for the relational backend.
	DatabaseDSN string `json:"databaseDsn"`

	// LocalStorePath is the embedded key-value store file.
	LocalStorePath string `json:"localStorePath"`

	// WordlistPath is the newline-delimited banned-answer file.
	WordlistPath string `json:"wordlistPath"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	// Directory holds directory connection and attribute settings.
	Directory DirectoryOptions `json:"directory"`

	// ResponseStorage and OtpStorage order the backends per secret type.
	ResponseStorage StorageOptions `json:"responseStorage"`
	OtpStorage      StorageOptions `json:"otpStorage"`

	// Otp holds the one-time-password parameters.
	Otp OtpOptions `json:"otp"`

	// AnswerHash controls challenge answer storage.
	AnswerHash AnswerHashOptions `json:"answerHash"`

	// Profiles lists the candidate challenge profiles, in resolution order.
	Profiles []models.ChallengeProfile `json:"profiles"`

	// Actions are the post-verification side effects, in execution order.
	Actions []action.Action `json:"actions"`
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.LocalStorePath, "l", "credstore.db", "embedded store file")
	flag.StringVar(&options.LogLevel, "log", "info", "log level")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if bindPassword := os.Getenv("DIRECTORY_BIND_PASSWORD"); bindPassword != "" {
		options.Directory.BindPassword = bindPassword
	}

	if err := options.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return options
}

// Validate rejects configurations the orchestrator cannot run with:
// unknown backend kinds and duplicated preference entries.
func (o *Options) Validate() error {
	lists := map[string][]models.BackendKind{
		"responseStorage.readPreference":  o.ResponseStorage.ReadPreference,
		"responseStorage.writePreference": o.ResponseStorage.WritePreference,
		"otpStorage.readPreference":       o.OtpStorage.ReadPreference,
		"otpStorage.writePreference":      o.OtpStorage.WritePreference,
	}
	for name, list := range lists {
		seen := make(map[models.BackendKind]bool, len(list))
		for _, k := range list {
			if !k.Valid() {
				return fmt.Errorf("%s: unknown backend kind %q", name, k)
			}
			if seen[k] {
				return fmt.Errorf("%s: backend %q listed twice", name, k)
			}
			seen[k] = true
		}
	}
	return nil
}
