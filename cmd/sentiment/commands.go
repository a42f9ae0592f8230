package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sentiment-classifier/internal/config"
	"sentiment-classifier/internal/corpus"
	"sentiment-classifier/internal/dataset"
	"sentiment-classifier/internal/handler"
	"sentiment-classifier/internal/mlclient"
	"sentiment-classifier/internal/models"
	"sentiment-classifier/internal/repository"
	"sentiment-classifier/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	configPath  string
	importTrain string
	importTest  string
	serverURL   string
)

func addConfigFlag(cmd *commander.Command) {
	cmd.Flag.StringVar(&configPath, "config", "configs/config.yml", "YAML configuration file")
}

// setup loads the configuration and a development logger.
func setup() (*config.Config, *zap.Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openDB(cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	if cfg.Database.Type == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return repository.NewDB(cfg.Database.Type, cfg.Database.Path, logger)
}

// loadSplits reads the train and test corpora from the configured source and
// wraps them as tokenizing datasets.
func loadSplits(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *zap.Logger, withTrain bool) (train, test *dataset.Dataset, err error) {
	tok, err := service.LoadTokenizer(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	var trainSrc, testSrc corpus.Source
	switch cfg.Corpus.Source {
	case "tsv":
		trainSrc = corpus.TSVSource{Path: cfg.Corpus.TrainPath}
		testSrc = corpus.TSVSource{Path: cfg.Corpus.TestPath}
	default:
		repo := repository.NewCorpusRepository(db, logger)
		trainSrc = repository.TableSource{Repo: repo, Table: cfg.Corpus.TrainTable}
		testSrc = repository.TableSource{Repo: repo, Table: cfg.Corpus.TestTable}
	}

	if withTrain {
		samples, err := trainSrc.Load(ctx, cfg.Corpus.Limit)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load training corpus: %w", err)
		}
		train = dataset.New(samples, tok, cfg.Tokenizer.MaxLen, cfg.Tokenizer.PadID)
	}
	samples, err := testSrc.Load(ctx, cfg.Corpus.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load test corpus: %w", err)
	}
	test = dataset.New(samples, tok, cfg.Tokenizer.MaxLen, cfg.Tokenizer.PadID)

	logger.Info("Corpus loaded",
		zap.String("source", cfg.Corpus.Source),
		zap.Int("test_size", test.Len()))
	return train, test, nil
}

func trainOptions(cfg *config.Config) service.TrainOptions {
	return service.TrainOptions{
		ModelName:    cfg.Encoder.Model,
		Epochs:       cfg.Training.Epochs,
		BatchSize:    cfg.Training.BatchSize,
		LearningRate: cfg.Training.LearningRate,
		Shuffle:      *cfg.Training.Shuffle,
		Seed:         *cfg.Training.Seed,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func trainCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runTrain,
		UsageLine: "train [-config file]",
		Short:     "fine-tunes the classifier head and evaluates it after every epoch",
		Long: `
fine-tunes the BiLSTM + TextCNN head on the training split, evaluates on the
test split after every epoch and writes the head checkpoint

	$ sentiment train -config configs/config.yml

`,
		Flag: *flag.NewFlagSet("train", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	return cmd
}

func runTrain(cmd *commander.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	db, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.MigrateDB(db, cfg.Database.Type, logger); err != nil {
		return err
	}

	train, test, err := loadSplits(ctx, cfg, db, logger, true)
	if err != nil {
		return err
	}

	model, err := service.BuildModel(cfg, false, logger)
	if err != nil {
		return err
	}

	trainer := service.NewTrainer(model, repository.NewRunRepository(db), clockwork.NewRealClock(), logger,
		trainOptions(cfg))
	details, err := trainer.Run(ctx, train, test)
	if err != nil {
		return err
	}

	if err := model.SaveFile(cfg.Model.Checkpoint); err != nil {
		return err
	}
	logger.Info("Checkpoint saved",
		zap.String("run_id", details.Run.ID),
		zap.String("path", cfg.Model.Checkpoint))
	return nil
}

func evalCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runEval,
		UsageLine: "eval [-config file]",
		Short:     "evaluates a trained checkpoint on the test split",
		Long: `
evaluates the trained checkpoint on the test split and logs the confusion
matrix with accuracy, precision, recall, F1 and AUC

	$ sentiment eval -config configs/config.yml

`,
		Flag: *flag.NewFlagSet("eval", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	return cmd
}

func runEval(cmd *commander.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	var db *sqlx.DB
	if cfg.Corpus.Source != "tsv" {
		db, err = openDB(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	_, test, err := loadSplits(ctx, cfg, db, logger, false)
	if err != nil {
		return err
	}

	model, err := service.BuildModel(cfg, true, logger)
	if err != nil {
		return err
	}

	_, err = service.Evaluate(ctx, model, test, trainOptions(cfg), logger)
	return err
}

func serveCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runServe,
		UsageLine: "serve [-config file]",
		Short:     "serves classification and training history over HTTP",
		Long: `
loads the trained checkpoint and serves the classification API, the training
run history and Prometheus metrics

	$ sentiment serve -config configs/config.yml

`,
		Flag: *flag.NewFlagSet("serve", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	return cmd
}

func runServe(cmd *commander.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting Sentiment Service...")

	tok, err := service.LoadTokenizer(cfg)
	if err != nil {
		return fmt.Errorf("failed to load tokenizer: %w", err)
	}
	model, err := service.BuildModel(cfg, true, logger)
	if err != nil {
		return err
	}
	predictor := service.NewPredictor(model, tok, service.PredictorOptions{
		MaxLen:      cfg.Tokenizer.MaxLen,
		PadID:       cfg.Tokenizer.PadID,
		ClassNames:  cfg.Model.ClassNames,
		EncoderName: cfg.Encoder.Model,
	}, logger)

	var runs repository.RunRepository
	db, err := openDB(cfg, logger)
	if err != nil {
		logger.Warn("Run history unavailable", zap.Error(err))
	} else {
		defer db.Close()
		if err := repository.MigrateDB(db, cfg.Database.Type, logger); err != nil {
			return err
		}
		runs = repository.NewRunRepository(db)
	}

	apiHandler := handler.NewHandler(predictor, runs, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	router.Use(handler.CORS(), handler.Metrics())
	apiHandler.RegisterRoutes(router)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("Sentiment Service is running",
		zap.String("port", cfg.Server.Port),
		zap.String("encoder", cfg.Encoder.Model))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

func importCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runImport,
		UsageLine: "import -train <file> -test <file> [-config file]",
		Short:     "loads tab-separated corpus files into the database tables",
		Long: `
loads text<TAB>label files into the configured train and test tables

	$ sentiment import -train data/train.txt -test data/test.txt

`,
		Flag: *flag.NewFlagSet("import", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	cmd.Flag.StringVar(&importTrain, "train", "", "training corpus file")
	cmd.Flag.StringVar(&importTest, "test", "", "test corpus file")
	return cmd
}

func runImport(cmd *commander.Command, args []string) error {
	if importTrain == "" && importTest == "" {
		cmd.Usage()
		return errors.New("at least one of -train or -test is required")
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	db, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := repository.NewCorpusRepository(db, logger)

	for _, job := range []struct{ path, table string }{
		{importTrain, cfg.Corpus.TrainTable},
		{importTest, cfg.Corpus.TestTable},
	} {
		if job.path == "" {
			continue
		}
		samples, err := corpus.TSVSource{Path: job.path}.Load(ctx, cfg.Corpus.Limit)
		if err != nil {
			return err
		}
		if err := repo.ImportSamples(ctx, job.table, samples); err != nil {
			return err
		}
		logger.Info("Corpus imported",
			zap.String("file", job.path),
			zap.String("table", job.table),
			zap.Int("rows", len(samples)))
	}
	return nil
}

func classifyCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runClassify,
		UsageLine: "classify [-url server] <text>...",
		Short:     "classifies texts against a running sentiment server",
		Long: `
checks the health of a running sentiment server and classifies each argument,
printing category, confidence and text per line

	$ sentiment classify -url http://localhost:8003 "今天天气真好"

`,
		Flag: *flag.NewFlagSet("classify", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&serverURL, "url", "http://localhost:8003", "sentiment server base URL")
	return cmd
}

func runClassify(cmd *commander.Command, args []string) error {
	if len(args) == 0 {
		cmd.Usage()
		return errors.New("no text to classify")
	}

	ctx, stop := signalContext()
	defer stop()

	return classifyRemote(ctx, mlclient.NewClient(serverURL), args, os.Stdout)
}

// classifyRemote classifies texts through client, a single request for one
// text and a batch request otherwise.
func classifyRemote(ctx context.Context, client *mlclient.Client, texts []string, w io.Writer) error {
	health, err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("server unavailable (breaker %s): %w", client.State(), err)
	}
	if !health.ModelLoaded {
		return fmt.Errorf("server not ready: %s", health.Message)
	}

	if len(texts) == 1 {
		resp, err := client.ClassifySingle(ctx, texts[0])
		if err != nil {
			return fmt.Errorf("classification failed (breaker %s): %w", client.State(), err)
		}
		fmt.Fprintf(w, "%s\t%.4f\t%s\n", resp.Category, resp.Confidence, resp.Text)
		return nil
	}

	messages := make([]models.BatchMessage, len(texts))
	for i, text := range texts {
		messages[i] = models.BatchMessage{ID: int64(i), Text: text}
	}
	resp, err := client.ClassifyBatch(ctx, messages)
	if err != nil {
		return fmt.Errorf("batch classification failed (breaker %s): %w", client.State(), err)
	}
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%s\t%.4f\t%s\n", r.Category, r.Confidence, r.Text)
	}
	return nil
}
