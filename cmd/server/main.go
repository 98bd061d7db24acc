// Package main initializes and starts the credstore server, setting up
// configuration, logging, the storage backends, the orchestrators and
// the HTTP handlers.
package main

import (
	"cmp"
	"fmt"

	nethttp "net/http"

	"github.com/credself/credstore/internal/action"
	"github.com/credself/credstore/internal/backend"
	"github.com/credself/credstore/internal/config"
	"github.com/credself/credstore/internal/db"
	"github.com/credself/credstore/internal/logger"
	"github.com/credself/credstore/internal/models"
	"github.com/credself/credstore/internal/orchestrator"
	"github.com/credself/credstore/internal/otp"
	"github.com/credself/credstore/internal/profile"
	"github.com/credself/credstore/internal/server/handler/http"
	"github.com/credself/credstore/internal/service"
	"github.com/credself/credstore/internal/validate"
	"github.com/credself/credstore/internal/wordlist"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(cmp.Or(options.LogLevel, "info")); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Shared directory connectivity for the attribute backends, GUID
	// resolution and predicate evaluation.
	conns := backend.NewSharedConnProvider(
		options.Directory.URL,
		options.Directory.BindDN,
		options.Directory.BindPassword,
	)
	defer conns.Close()
	guids := backend.NewDirectoryGuidResolver(conns, cmp.Or(options.Directory.GuidAttribute, "entryUUID"))

	// Backend registries per secret type. Backends are constructed for
	// every kind named in a preference list; the rest stay unwired.
	responseOps := make(map[models.BackendKind]backend.Operator[models.ResponseRecord])
	otpOps := make(map[models.BackendKind]backend.Operator[models.OtpRecord])

	wantKinds := make(map[models.BackendKind]bool)
	for _, list := range [][]models.BackendKind{
		options.ResponseStorage.ReadPreference, options.ResponseStorage.WritePreference,
		options.OtpStorage.ReadPreference, options.OtpStorage.WritePreference,
	} {
		for _, k := range list {
			wantKinds[k] = true
		}
	}

	if wantKinds[models.Relational] {
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		responseOps[models.Relational] = backend.NewPostgres[models.ResponseRecord](postgresDB, models.SecretResponses)
		otpOps[models.Relational] = backend.NewPostgres[models.OtpRecord](postgresDB, models.SecretOTP)
	}

	if wantKinds[models.EmbeddedStore] {
		localDB, err := bolt.Open(options.LocalStorePath, 0o600, nil)
		if err != nil {
			zapLogger.Fatal("cannot open embedded store", zap.Error(err))
		}
		defer localDB.Close()
		responseOps[models.EmbeddedStore] = backend.NewLocal[models.ResponseRecord](localDB, "responses")
		otpOps[models.EmbeddedStore] = backend.NewLocal[models.OtpRecord](localDB, "otp")
	}

	if wantKinds[models.DirectoryAttribute] {
		responseOps[models.DirectoryAttribute] = backend.NewDirectoryAttr[models.ResponseRecord](conns, options.Directory.ResponseAttribute)
		otpOps[models.DirectoryAttribute] = backend.NewDirectoryAttr[models.OtpRecord](conns, options.Directory.OtpAttribute)
	}

	if wantKinds[models.DirectoryNative] {
		responseOps[models.DirectoryNative] = backend.NewDirectoryNative[models.ResponseRecord](
			conns, options.Directory.NativeResponseAttribute, options.Directory.NativeTimestampAttribute)
		otpOps[models.DirectoryNative] = backend.NewDirectoryNative[models.OtpRecord](
			conns, options.Directory.NativeOtpAttribute, options.Directory.NativeTimestampAttribute)
	}

	// Orchestrators implementing fallback read / fan-out write.
	responseStore, err := orchestrator.New(responseOps,
		options.ResponseStorage.ReadPreference, options.ResponseStorage.WritePreference,
		guids, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot build response orchestrator", zap.Error(err))
	}
	otpStore, err := orchestrator.New(otpOps,
		options.OtpStorage.ReadPreference, options.OtpStorage.WritePreference,
		guids, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot build otp orchestrator", zap.Error(err))
	}

	// Wordlist for answer screening. Optional.
	var words wordlist.Checker
	if options.WordlistPath != "" {
		list, err := wordlist.Load(options.WordlistPath)
		if err != nil {
			zapLogger.Fatal("cannot load wordlist", zap.Error(err))
		}
		zapLogger.Info("wordlist loaded", zap.Int("words", list.Len()))
		words = list
	}

	// Business-logic services.
	resolver := profile.NewResolver(backend.NewDirectoryPredicateEvaluator(conns), zapLogger)
	validator := validate.NewValidator(words)
	lifecycle := otp.NewLifecycle(otp.Config{
		Issuer:                 options.Otp.Issuer,
		Algorithm:              models.OtpAlgorithm(options.Otp.Algorithm),
		Digits:                 options.Otp.Digits,
		PeriodSeconds:          options.Otp.PeriodSeconds,
		PastIntervals:          options.Otp.PastIntervals,
		FutureIntervals:        options.Otp.FutureIntervals,
		SecretBytes:            options.Otp.SecretBytes,
		RecoveryCodesEnabled:   options.Otp.RecoveryCodesEnabled,
		RecoveryCodeCount:      options.Otp.RecoveryCodeCount,
		RecoveryCodeLength:     options.Otp.RecoveryCodeLength,
		RecoveryHashAlgorithm:  options.Otp.RecoveryHashAlgorithm,
		RecoveryHashIterations: options.Otp.RecoveryHashIterations,
	})
	svc := service.New(responseStore, otpStore, resolver, validator, lifecycle,
		service.AnswerHashConfig{
			Algorithm:  options.AnswerHash.Algorithm,
			Iterations: options.AnswerHash.Iterations,
		}, zapLogger)
	if len(options.Actions) > 0 {
		svc = svc.WithActions(action.NewExecutor(conns, nil, zapLogger), options.Actions)
	}

	// Create HTTP handlers and build the router.
	responseHandler := &http.ResponseHandler{Service: svc, Profiles: options.Profiles}
	otpHandler := &http.OtpHandler{Service: svc}
	router := http.NewRouter(responseHandler, otpHandler, zapLogger)

	server := &nethttp.Server{
		Addr:    options.Port,
		Handler: router,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
