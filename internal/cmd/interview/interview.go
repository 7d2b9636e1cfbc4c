// Package interview parses interview command flags and launches the service.
package interview

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	platformconfig "github.com/caliperhq/caliper/internal/platform/config"
	platformotel "github.com/caliperhq/caliper/internal/platform/otel"
	httpapi "github.com/caliperhq/caliper/internal/services/interview/api/http"
	"github.com/caliperhq/caliper/internal/services/interview/app"
	"github.com/caliperhq/caliper/internal/services/interview/domain/credential"
	"github.com/caliperhq/caliper/internal/services/interview/domain/irt"
	"github.com/caliperhq/caliper/internal/services/interview/domain/question"
	"github.com/caliperhq/caliper/internal/services/interview/domain/session"
	"github.com/caliperhq/caliper/internal/services/interview/storage/sqlite"
)

// Config holds interview command configuration.
type Config struct {
	Addr          string        `env:"CALIPER_INTERVIEW_ADDR" envDefault:":8080"`
	DBPath        string        `env:"CALIPER_INTERVIEW_DB_PATH" envDefault:"data/interview.db"`
	QuestionsPath string        `env:"CALIPER_INTERVIEW_QUESTIONS_PATH" envDefault:"data/questions.json"`
	StartGrace    time.Duration `env:"CALIPER_INTERVIEW_START_GRACE" envDefault:"5m"`
	ScheduledTTL  time.Duration `env:"CALIPER_INTERVIEW_SCHEDULED_TTL" envDefault:"30m"`
	PauseTTL      time.Duration `env:"CALIPER_INTERVIEW_PAUSE_TTL" envDefault:"15m"`
	FaultTTL      time.Duration `env:"CALIPER_INTERVIEW_FAULT_TTL" envDefault:"10m"`
	Precision     float64       `env:"CALIPER_INTERVIEW_PRECISION_THRESHOLD" envDefault:"0.4"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformconfig.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The interview SQLite database path")
	fs.StringVar(&cfg.QuestionsPath, "questions-path", cfg.QuestionsPath, "The question bank JSON file path")
	fs.DurationVar(&cfg.StartGrace, "start-grace", cfg.StartGrace, "Grace window before the scheduled start")
	fs.DurationVar(&cfg.ScheduledTTL, "scheduled-ttl", cfg.ScheduledTTL, "Window past the slot before an unstarted session expires")
	fs.DurationVar(&cfg.PauseTTL, "pause-ttl", cfg.PauseTTL, "Window before a paused session expires")
	fs.DurationVar(&cfg.FaultTTL, "fault-ttl", cfg.FaultTTL, "Window before a faulted session expires")
	fs.Float64Var(&cfg.Precision, "precision-threshold", cfg.Precision, "Standard error at which a session may complete")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// bankItem is the JSON shape of one question bank entry.
type bankItem struct {
	ID             string   `json:"id"`
	Content        string   `json:"content"`
	JobRole        string   `json:"job_role"`
	Technologies   []string `json:"technologies"`
	Difficulty     float64  `json:"difficulty"`
	Discrimination float64  `json:"discrimination"`
}

// loadBank reads the question bank file into memory.
func loadBank(path string) (question.Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var items []bankItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	questions := make([]question.Question, 0, len(items))
	for _, item := range items {
		questions = append(questions, question.Question{
			ID:             item.ID,
			Content:        item.Content,
			JobRole:        item.JobRole,
			Technologies:   item.Technologies,
			Difficulty:     item.Difficulty,
			Discrimination: item.Discrimination,
		})
	}
	bank, err := question.NewMemoryBank(questions)
	if err != nil {
		return nil, fmt.Errorf("build question bank: %w", err)
	}
	log.Printf("question bank loaded path=%s items=%d", path, len(questions))
	return bank, nil
}

// Run starts the interview service and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := platformotel.Setup(ctx, "interview")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	issuerCfg, err := credential.LoadIssuerConfigFromEnv(nil)
	if err != nil {
		return err
	}
	verifierCfg, err := credential.LoadVerifierConfigFromEnv(nil)
	if err != nil {
		return err
	}

	bank, err := loadBank(cfg.QuestionsPath)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open interview store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close interview store: %v", err)
		}
	}()

	estimator := irt.DefaultConfig()
	if cfg.Precision > 0 {
		estimator.PrecisionThreshold = cfg.Precision
	}

	service, err := app.NewService(app.Config{
		Sessions:       store,
		Revocations:    store,
		Bank:           bank,
		IssuerConfig:   issuerCfg,
		VerifierConfig: verifierCfg,
		Estimator:      estimator,
		Windows: session.Windows{
			StartGrace:      cfg.StartGrace,
			ScheduledExpiry: cfg.ScheduledTTL,
			PauseTimeout:    cfg.PauseTTL,
			FaultTimeout:    cfg.FaultTTL,
		},
	})
	if err != nil {
		return fmt.Errorf("build interview service: %w", err)
	}

	go service.RunExpiryWorker(ctx)

	server, err := httpapi.NewServer(service)
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}
	return server.ListenAndServe(ctx, cfg.Addr)
}
