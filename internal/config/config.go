package config

import (
	"strings"

	"github.com/aedgar777/maypole-functions/internal/envconfig"
)

type Config struct {
	Port         string `validate:"required"`
	GCPProjectID string `validate:"required"`
	DataStore    string `validate:"required,oneof=firestore memory"`
	Auth         AuthConfig
	Deletion     DeletionConfig
	Site         SiteConfig
	Firestore    FirestoreConfig
}

type AuthConfig struct {
	Mode    string `validate:"required"`
	JWKSURL string
}

type DeletionConfig struct {
	BatchSize int `validate:"gt=0"`
}

type SiteConfig struct {
	URL               string
	VerificationToken string   `validate:"required"`
	ExpectedContent   []string `validate:"min=1"`
}

type FirestoreConfig struct {
	EmulatorHost string
}

func Load() (Config, error) {
	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", "maypole-app"),
		DataStore:    envconfig.Get("DATASTORE", "firestore"),
		Auth: AuthConfig{
			Mode:    envconfig.Get("AUTH_MODE", "firebase"),
			JWKSURL: envconfig.Get("FIREBASE_JWKS_URL", ""),
		},
		Deletion: DeletionConfig{
			BatchSize: envconfig.GetInt("DELETION_BATCH_SIZE", 500),
		},
		Site: SiteConfig{
			URL:               envconfig.Get("SITE_URL", "https://maypole.app"),
			VerificationToken: envconfig.Get("SITE_VERIFICATION_TOKEN", "maypole-domain-verification"),
			ExpectedContent:   splitList(envconfig.Get("SITE_EXPECTED_CONTENT", "Maypole")),
		},
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
		},
	}
	return cfg, envconfig.Validate(cfg)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
