package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizgate/internal/app"
	"quizgate/internal/config"
	"quizgate/internal/domain"
	"quizgate/internal/infra/memory"
	pgloader "quizgate/internal/infra/postgres"
	redisstore "quizgate/internal/infra/redis"
	"quizgate/internal/payment"
	transport "quizgate/internal/transport/http"
	"quizgate/internal/transport/telegram"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the bot and webhook server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bot and the payment webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	engineCfg := app.DefaultConfig()
	engineCfg.TestDuration = config.Duration(cfg.Quiz.TestDuration, engineCfg.TestDuration)
	if cfg.Quiz.TotalQuestions > 0 {
		engineCfg.TotalQuestions = cfg.Quiz.TotalQuestions
	}
	if cfg.Quiz.SubscriptionDays > 0 {
		engineCfg.SubscriptionValidity = time.Duration(cfg.Quiz.SubscriptionDays) * 24 * time.Hour
	}

	var subs app.SubscriptionRegistry
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		subs = redisstore.NewSubscriptionStore(client)
	} else {
		subs = memory.NewSubscriptionStore()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if cfg.Quiz.QuestionsFile != "" {
		loader = memory.NewFileQuestionLoader(cfg.Quiz.QuestionsFile)
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgloader.NewQuestionLoader(pool)
	}
	bankTTL := config.Duration(cfg.Quiz.BankTTL, 10*time.Minute)
	bank := memory.NewQuestionBank(loader, bankTTL)

	service := app.NewQuizService(engineCfg, subs, memory.NewSessionStore(), bank)

	var payments telegram.PaymentLinks
	if cfg.Razorpay.KeyID != "" && cfg.Razorpay.KeySecret != "" {
		payments = payment.NewRazorpayLinks(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	}

	token := cfg.Telegram.Token
	if token == "" {
		token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	bot, err := telegram.NewBot(token, service, payments)
	if err != nil {
		return err
	}
	service.SetNotifier(bot)

	webhook := transport.NewWebhookHandler(service, cfg.Razorpay.WebhookSecret)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/webhook/razorpay", webhook.HandleWebhook)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Printf("starting webhook server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// sampleQuestions provides a minimal bank so the bot works out of the box;
// configure questions_file or postgres.url for a real one.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:      "q1",
			Prompt:  "What is 2 + 2?",
			Options: []string{"3", "4", "5"},
			Correct: "4",
		},
		{
			ID:      "q2",
			Prompt:  "Which planet is known as the Red Planet?",
			Options: []string{"Venus", "Mars", "Jupiter"},
			Correct: "Mars",
		},
		{
			ID:      "q3",
			Prompt:  "How many sides does a hexagon have?",
			Options: []string{"5", "6", "7"},
			Correct: "6",
		},
	}
}
