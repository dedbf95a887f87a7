package extractor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	LayoutDetector = "detector"
	LayoutChannel  = "channel"

	FormatNpz  = "npz"
	FormatHdf5 = "hdf5"

	OnDecodeErrorStop = "stop"
	OnDecodeErrorSkip = "skip"
)

type Configuration struct {
	MaxEvents        int    `json:"max_events" yaml:"max_events"`
	Skip             int    `json:"skip" yaml:"skip"`
	Verbosity        int    `json:"verbosity" yaml:"verbosity"`
	Threshold        int    `json:"threshold" yaml:"threshold"`
	ShortTraceMin    int    `json:"short_trace_min" yaml:"short_trace_min"`
	ArchiveDir       string `json:"archive_dir" yaml:"archive_dir"`
	MetadataDir      string `json:"metadata_dir" yaml:"metadata_dir"`
	ArchiveFormat    string `json:"archive_format" yaml:"archive_format"`
	Layout           string `json:"layout" yaml:"layout"`
	CompressionLevel int    `json:"compression_level" yaml:"compression_level"`
	OnDecodeError    string `json:"on_decode_error" yaml:"on_decode_error"`
	WriteBounds      bool   `json:"write_bounds" yaml:"write_bounds"`
	CatalogDriver    string `json:"catalog_driver" yaml:"catalog_driver"`
	CatalogPath      string `json:"catalog_path" yaml:"catalog_path"`
	Host             string `json:"host" yaml:"host"`
	User             string `json:"user" yaml:"user"`
	Passwd           string `json:"pass" yaml:"pass"`
	DBName           string `json:"dbname" yaml:"dbname"`
}

func DefaultConfiguration() Configuration {
	return Configuration{
		MaxEvents:        100,
		Skip:             0,
		Verbosity:        0,
		Threshold:        4096,
		ShortTraceMin:    1024,
		ArchiveDir:       "./mid_npz/",
		MetadataDir:      "./metadata/",
		ArchiveFormat:    FormatNpz,
		Layout:           LayoutDetector,
		CompressionLevel: 4,
		OnDecodeError:    OnDecodeErrorStop,
		WriteBounds:      false,
		CatalogDriver:    "",
		CatalogPath:      "./catalog.db",
	}
}

// LoadConfiguration starts from the defaults and overlays the given file,
// JSON or YAML depending on its extension. An empty filename returns the
// defaults.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()
	if filename == "" {
		return config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, &ErrOpenFile{Filename: filename, Err: err}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("error parsing configuration file %q: %w", filename, err)
	}
	return config, config.Validate()
}

func (c Configuration) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %d", c.Threshold)
	}
	if c.ShortTraceMin < 0 || c.ShortTraceMin >= c.Threshold {
		return fmt.Errorf("short_trace_min must be in [0, %d), got %d", c.Threshold, c.ShortTraceMin)
	}
	if c.Skip < 0 {
		return fmt.Errorf("skip must not be negative, got %d", c.Skip)
	}
	switch c.Layout {
	case LayoutDetector, LayoutChannel:
	default:
		return fmt.Errorf("unknown layout %q", c.Layout)
	}
	switch c.ArchiveFormat {
	case FormatNpz, FormatHdf5:
	default:
		return fmt.Errorf("unknown archive format %q", c.ArchiveFormat)
	}
	switch c.OnDecodeError {
	case OnDecodeErrorStop, OnDecodeErrorSkip:
	default:
		return fmt.Errorf("unknown on_decode_error policy %q", c.OnDecodeError)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be in [0, 9], got %d", c.CompressionLevel)
	}
	return nil
}

func PrintConfiguration(config Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Threshold: %d", config.Threshold), "config")
	logger.Info(fmt.Sprintf("Short trace min: %d", config.ShortTraceMin), "config")
	logger.Info(fmt.Sprintf("Archive dir: %s", config.ArchiveDir), "config")
	logger.Info(fmt.Sprintf("Metadata dir: %s", config.MetadataDir), "config")
	logger.Info(fmt.Sprintf("Archive format: %s", config.ArchiveFormat), "config")
	logger.Info(fmt.Sprintf("Layout: %s", config.Layout), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("On decode error: %s", config.OnDecodeError), "config")
	logger.Info(fmt.Sprintf("Write bounds: %t", config.WriteBounds), "config")
	logger.Info(fmt.Sprintf("Catalog driver: %s", config.CatalogDriver), "config")
	if config.CatalogDriver == "sqlite" {
		logger.Info(fmt.Sprintf("Catalog path: %s", config.CatalogPath), "config")
	}
	if config.CatalogDriver == "mysql" {
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	}
}
