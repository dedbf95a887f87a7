package main

import (
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	_ "modernc.org/sqlite"

	extractor "github.com/nsdf-fabric/mid_extract/pkg"
	"github.com/nsdf-fabric/mid_extract/pkg/h5archive"
	"github.com/nsdf-fabric/mid_extract/pkg/midas"
	"github.com/nsdf-fabric/mid_extract/pkg/npz"
)

var logger = extractor.NewStdLogger(os.Stdout, os.Stderr)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	configFilename := flags.String("config", "", "Configuration file path (JSON or YAML)")
	maxEvents := flags.Int("max-events", 0, "Number of events to read, overrides the configuration")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: extract [--config file] [--max-events N] <input.mid>\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return 2
	}
	input := flags.Arg(0)

	configuration, err := extractor.LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		return 1
	}
	if flags.Changed("max-events") {
		configuration.MaxEvents = *maxEvents
	}
	if configuration.Verbosity > 0 {
		if *configFilename != "" {
			logger.Info(fmt.Sprintf("Reading configuration file: %s", *configFilename), "main")
		}
		extractor.PrintConfiguration(configuration, logger)
	}

	ex := extractor.NewExtractor(configuration, openSource, archiveOpener(configuration))
	ex.Logger = logger

	if driver, dsn := configuration.CatalogDSN(); driver != "" {
		catalog, err := extractor.OpenCatalog(driver, dsn)
		if err != nil {
			message := fmt.Errorf("Error connecting to catalog: %w", err)
			logger.Error(message.Error())
			return 1
		}
		defer catalog.Close()
		ex.Catalog = catalog
	}

	summary, err := ex.Run(input)
	if err != nil {
		logger.Error(err.Error())
		return 1
	}
	if !summary.AlreadyExtracted {
		message := fmt.Sprintf("Wrote %d events to %s and %d arrays to %s",
			summary.EventsWritten, summary.Metadata, len(summary.Entries), summary.Archive)
		logger.Info(message, "main")
	}
	return 0
}

func openSource(path string) (extractor.EventSource, error) {
	return midas.OpenSource(path)
}

func archiveOpener(configuration extractor.Configuration) extractor.ArchiveOpener {
	if configuration.ArchiveFormat == extractor.FormatHdf5 {
		return h5archive.Opener(configuration.CompressionLevel)
	}
	return func(path string, mode extractor.ArchiveMode) (extractor.ArrayWriter, error) {
		return npz.Open(path, npz.Mode(mode), configuration.CompressionLevel)
	}
}
