package detectstream

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultIoUThreshold is the default Non-Maximum Suppression IoU threshold
	DefaultIoUThreshold = 0.45
	// DefaultScoreThreshold is the default minimum confidence score
	DefaultScoreThreshold = 0.5
	// DefaultScheduleTimeout is how long a processor waits for the backend
	// to signal its outputs are ready before giving up on the frame
	DefaultScheduleTimeout = 2 * time.Second
)

// ModelConfig is the configuration a model processor holds once loaded
type ModelConfig struct {
	// InputWidth and InputHeight are the model input dimensions as established
	// by the model's own input shape
	InputWidth  int
	InputHeight int
	// IoUThreshold is the Intersection over Union above which the lower
	// scoring of two overlapping boxes is suppressed
	IoUThreshold float32
	// ScoreThreshold is the minimum score a box needs to be kept
	ScoreThreshold float32
	// Labels are the class names indexed by class id
	Labels []string
	// ScheduleTimeout bounds the wait for backend outputs
	ScheduleTimeout time.Duration
}

// Validate checks the model config can be used to process frames
func (c ModelConfig) Validate() error {

	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return LoadError(nil, "model input dimensions must be positive")
	}

	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return LoadError(nil, "iou threshold must be within [0,1]")
	}

	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return LoadError(nil, "score threshold must be within [0,1]")
	}

	if len(c.Labels) == 0 {
		return LoadError(nil, "no labels loaded")
	}

	return nil
}

// Config is the file based configuration of a detection stream
type Config struct {
	// ModelVariant selects the detector family, primary-detector or
	// alternate-detector
	ModelVariant string `yaml:"model_variant"`
	// ModelPath is the model file handed to the backend
	ModelPath string `yaml:"model_path"`
	// LabelsPath is a text file with one label per line
	LabelsPath string `yaml:"labels_path"`
	// Labels can be given inline instead of LabelsPath
	Labels []string `yaml:"labels"`
	// Backend is the compute kind used to run the model
	Backend string `yaml:"backend"`
	// IoUThreshold and ScoreThreshold are the NMS thresholds
	IoUThreshold   float32 `yaml:"iou_threshold"`
	ScoreThreshold float32 `yaml:"score_threshold"`
	// DisplayWidth and DisplayHeight are the viewport dimensions detections
	// are remapped to
	DisplayWidth  int `yaml:"display_width"`
	DisplayHeight int `yaml:"display_height"`
	// ScheduleTimeout bounds how long a frame waits on the backend
	ScheduleTimeout Duration `yaml:"schedule_timeout"`
}

// Duration is a time.Duration read from YAML as a Go duration string
type Duration time.Duration

// UnmarshalYAML parses a duration string such as "1500ms"
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {

	var s string

	if err := node.Decode(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)

	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}

	*d = Duration(v)
	return nil
}

// DefaultConfig returns a config with the default thresholds for the primary
// detector running on the OpenCV CPU backend
func DefaultConfig() Config {
	return Config{
		ModelVariant:    "primary-detector",
		Backend:         "opencv-cpu",
		IoUThreshold:    DefaultIoUThreshold,
		ScoreThreshold:  DefaultScoreThreshold,
		DisplayWidth:    1280,
		DisplayHeight:   720,
		ScheduleTimeout: Duration(DefaultScheduleTimeout),
	}
}

// LoadConfig reads a YAML config file over the top of DefaultConfig
func LoadConfig(file string) (Config, error) {

	cfg := DefaultConfig()

	data, err := os.ReadFile(file)

	if err != nil {
		return cfg, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "error parsing config file")
	}

	return cfg, cfg.Validate()
}

// Validate checks the config values are within range
func (c Config) Validate() error {

	switch c.ModelVariant {
	case "primary-detector", "alternate-detector":
	default:
		return errors.Errorf("unknown model variant %q", c.ModelVariant)
	}

	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return errors.Errorf("iou_threshold %v outside [0,1]", c.IoUThreshold)
	}

	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return errors.Errorf("score_threshold %v outside [0,1]", c.ScoreThreshold)
	}

	if c.DisplayWidth <= 0 || c.DisplayHeight <= 0 {
		return errors.Errorf("display size %dx%d must be positive",
			c.DisplayWidth, c.DisplayHeight)
	}

	if c.ScheduleTimeout < 0 {
		return errors.New("schedule_timeout must not be negative")
	}

	return nil
}

// ResolveLabels returns the inline labels, or loads them from LabelsPath
func (c Config) ResolveLabels() ([]string, error) {

	if len(c.Labels) > 0 {
		return c.Labels, nil
	}

	if c.LabelsPath == "" {
		return nil, LoadError(nil, "no labels configured")
	}

	labels, err := LoadLabels(c.LabelsPath)

	if err != nil {
		return nil, LoadError(err, "loading labels")
	}

	return labels, nil
}
