package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/go-chi/chi/v5"

	"github.com/aedgar777/maypole-functions/internal/auth"
	"github.com/aedgar777/maypole-functions/internal/config"
	"github.com/aedgar777/maypole-functions/internal/deletion"
	"github.com/aedgar777/maypole-functions/internal/httpapi"
	"github.com/aedgar777/maypole-functions/internal/logging"
	"github.com/aedgar777/maypole-functions/internal/server"
	"github.com/aedgar777/maypole-functions/internal/verification"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger("maypole-functions")

	var (
		store     deletion.Store
		authAdmin deletion.AuthAdmin
		sink      deletion.Sink
	)

	if cfg.DataStore == "memory" {
		store = deletion.NewMemoryStore()
		authAdmin = deletion.NewMemoryAuth()
		sink = deletion.NewMemorySink()
	} else {
		client, err := firestore.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			panic(fmt.Errorf("firestore client: %w", err))
		}
		defer client.Close()

		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.GCPProjectID})
		if err != nil {
			panic(fmt.Errorf("firebase app: %w", err))
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			panic(fmt.Errorf("firebase auth client: %w", err))
		}

		store = deletion.NewFirestoreStore(client)
		authAdmin = deletion.NewFirebaseAuth(authClient)
		sink = deletion.NewFirestoreSink(client, logger)
	}

	deletionService := deletion.NewService(store, authAdmin, sink, logger, cfg.Deletion.BatchSize)
	checker := verification.NewChecker(cfg.Site.URL, cfg.Site.ExpectedContent)

	verifier, err := auth.NewVerifier(auth.Config{
		Mode:      auth.Mode(cfg.Auth.Mode),
		JWKSURL:   cfg.Auth.JWKSURL,
		ProjectID: cfg.GCPProjectID,
	})
	if err != nil {
		panic(fmt.Errorf("auth verifier error: %w", err))
	}

	router := server.NewRouter("maypole-functions", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))

			httpapi.RegisterRoutes(r, deletionService, checker, cfg.Site.VerificationToken, logger)
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := server.Run(ctx, srv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}
