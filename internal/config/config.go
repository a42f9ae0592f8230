package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"` // SQLite path or PostgreSQL URL
		Type string `yaml:"type"` // "sqlite" or "postgres"
	} `yaml:"database"`

	Corpus struct {
		Source     string `yaml:"source"` // "sqlite" (relational store) or "tsv"
		TrainTable string `yaml:"train_table"`
		TestTable  string `yaml:"test_table"`
		TrainPath  string `yaml:"train_path"`
		TestPath   string `yaml:"test_path"`
		Limit      int    `yaml:"limit"`
	} `yaml:"corpus"`

	Tokenizer struct {
		Path      string `yaml:"path"`  // tokenizer.json
		Vocab     string `yaml:"vocab"` // vocab.txt, used when Path is empty
		Lowercase bool   `yaml:"lowercase"`
		MaxLen    int    `yaml:"max_len"`
		PadID     int    `yaml:"pad_id"`
	} `yaml:"tokenizer"`

	Encoder EncoderConfig `yaml:"encoder"`

	Model struct {
		HiddenDim  int      `yaml:"hidden_dim"`
		NumLayers  int      `yaml:"n_layers"`
		DropProb   *float64 `yaml:"drop_prob"` // 0 disables dropout
		ClassNum   int      `yaml:"class_num"`
		Kernels    []int    `yaml:"kernels"`
		ClassNames []string `yaml:"class_names"`
		Checkpoint string   `yaml:"checkpoint"`
	} `yaml:"model"`

	Training struct {
		Epochs       int     `yaml:"epochs"`
		BatchSize    int     `yaml:"batch_size"`
		LearningRate float64 `yaml:"learning_rate"`
		Seed         *int64  `yaml:"seed"`
		Shuffle      *bool   `yaml:"shuffle"`
	} `yaml:"training"`
}

// EncoderConfig describes the frozen pretrained encoder.
type EncoderConfig struct {
	Model            string `yaml:"model"`      // pretrained identifier, informational
	Checkpoint       string `yaml:"checkpoint"` // binary weights; empty means seeded init
	VocabSize        int    `yaml:"vocab_size"`
	HiddenSize       int    `yaml:"hidden_size"` // embedding width
	NumLayers        int    `yaml:"num_layers"`
	NumHeads         int    `yaml:"num_heads"`
	IntermediateSize int    `yaml:"intermediate_size"`
	MaxPositions     int    `yaml:"max_positions"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.SetDefaults()

	config.Database.Path = os.ExpandEnv(config.Database.Path)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills every zero field with the stock BERT + BiLSTM + TextCNN settings.
func (c *Config) SetDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8003"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/weibo_db.db"
	}

	if c.Corpus.Source == "" {
		c.Corpus.Source = "sqlite"
	}
	if c.Corpus.TrainTable == "" {
		c.Corpus.TrainTable = "train_data"
	}
	if c.Corpus.TestTable == "" {
		c.Corpus.TestTable = "test_data"
	}
	if c.Corpus.TrainPath == "" {
		c.Corpus.TrainPath = "./data/train.txt"
	}
	if c.Corpus.TestPath == "" {
		c.Corpus.TestPath = "./data/test.txt"
	}

	if c.Tokenizer.Path == "" && c.Tokenizer.Vocab == "" {
		c.Tokenizer.Vocab = "./models/bert-base-chinese/vocab.txt"
	}
	if c.Tokenizer.MaxLen == 0 {
		c.Tokenizer.MaxLen = 20
	}

	if c.Encoder.Model == "" {
		c.Encoder.Model = "bert-base-chinese"
	}
	if c.Encoder.VocabSize == 0 {
		c.Encoder.VocabSize = 21128
	}
	if c.Encoder.HiddenSize == 0 {
		c.Encoder.HiddenSize = 768
	}
	if c.Encoder.NumLayers == 0 {
		c.Encoder.NumLayers = 12
	}
	if c.Encoder.NumHeads == 0 {
		c.Encoder.NumHeads = 12
	}
	if c.Encoder.IntermediateSize == 0 {
		c.Encoder.IntermediateSize = 3072
	}
	if c.Encoder.MaxPositions == 0 {
		c.Encoder.MaxPositions = 512
	}

	if c.Model.HiddenDim == 0 {
		c.Model.HiddenDim = 128
	}
	if c.Model.NumLayers == 0 {
		c.Model.NumLayers = 2
	}
	if c.Model.DropProb == nil {
		dropProb := 0.5
		c.Model.DropProb = &dropProb
	}
	if c.Model.ClassNum == 0 {
		c.Model.ClassNum = 2
	}
	if len(c.Model.Kernels) == 0 {
		c.Model.Kernels = []int{3, 5, 7}
	}
	if len(c.Model.ClassNames) == 0 {
		c.Model.ClassNames = make([]string, c.Model.ClassNum)
		for i := range c.Model.ClassNames {
			c.Model.ClassNames[i] = fmt.Sprintf("class_%d", i)
		}
	}
	if c.Model.Checkpoint == "" {
		c.Model.Checkpoint = "./models/classifier.bin"
	}

	if c.Training.Epochs == 0 {
		c.Training.Epochs = 1
	}
	if c.Training.BatchSize == 0 {
		c.Training.BatchSize = 10
	}
	if c.Training.LearningRate == 0 {
		c.Training.LearningRate = 0.001
	}
	if c.Training.Seed == nil {
		seed := int64(42)
		c.Training.Seed = &seed
	}
	if c.Training.Shuffle == nil {
		shuffle := true
		c.Training.Shuffle = &shuffle
	}
}

// Validate checks that the sizes are usable together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database type %q", c.Database.Type))
	}
	switch c.Corpus.Source {
	case "sqlite", "tsv":
	default:
		errs = append(errs, fmt.Errorf("unsupported corpus source %q", c.Corpus.Source))
	}

	if c.Tokenizer.MaxLen <= 0 {
		errs = append(errs, errors.New("tokenizer.max_len must be positive"))
	}
	if c.Tokenizer.MaxLen > c.Encoder.MaxPositions {
		errs = append(errs, fmt.Errorf("tokenizer.max_len %d exceeds encoder.max_positions %d",
			c.Tokenizer.MaxLen, c.Encoder.MaxPositions))
	}
	for _, k := range c.Model.Kernels {
		if k <= 0 {
			errs = append(errs, fmt.Errorf("kernel height %d must be positive", k))
		}
		if k > c.Tokenizer.MaxLen {
			errs = append(errs, fmt.Errorf("kernel height %d exceeds max_len %d", k, c.Tokenizer.MaxLen))
		}
	}
	if c.Encoder.HiddenSize%c.Encoder.NumHeads != 0 {
		errs = append(errs, fmt.Errorf("encoder.hidden_size %d not divisible by num_heads %d",
			c.Encoder.HiddenSize, c.Encoder.NumHeads))
	}
	if c.Tokenizer.PadID < 0 || c.Tokenizer.PadID >= c.Encoder.VocabSize {
		errs = append(errs, fmt.Errorf("pad_id %d outside vocabulary", c.Tokenizer.PadID))
	}
	if c.Model.ClassNum < 2 {
		errs = append(errs, errors.New("model.class_num must be at least 2"))
	}
	if len(c.Model.ClassNames) != c.Model.ClassNum {
		errs = append(errs, fmt.Errorf("model.class_names has %d entries, want %d",
			len(c.Model.ClassNames), c.Model.ClassNum))
	}
	if p := *c.Model.DropProb; p < 0 || p >= 1 {
		errs = append(errs, fmt.Errorf("model.drop_prob %v outside [0,1)", p))
	}
	if c.Training.BatchSize < 1 {
		errs = append(errs, errors.New("training.batch_size must be at least 1"))
	}
	if c.Training.Epochs < 1 {
		errs = append(errs, errors.New("training.epochs must be at least 1"))
	}
	if c.Training.LearningRate <= 0 {
		errs = append(errs, errors.New("training.learning_rate must be positive"))
	}

	return errors.Join(errs...)
}
