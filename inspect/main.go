package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/pflag"
	"golang.org/x/exp/maps"

	extractor "github.com/nsdf-fabric/mid_extract/pkg"
	"github.com/nsdf-fabric/mid_extract/pkg/midas"
)

var logger = extractor.NewStdLogger(os.Stdout, os.Stderr)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	configFilename := flags.String("config", "", "Configuration file path (JSON or YAML)")
	nEvents := flags.Int("events", 10, "Number of events to print, 0 prints all")
	dump := flags.Bool("dump", false, "Print the first samples of every channel")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: inspect [--config file] [--events N] [--dump] <input.mid>\n")
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

	reader, err := midas.OpenFile(input)
	if err != nil {
		logger.Error(err.Error())
		return 1
	}
	evtCount, err := reader.CountEvents()
	reader.Close()
	if err != nil {
		logger.Error(fmt.Errorf("error counting events: %w", err).Error())
		return 1
	}
	fmt.Fprintf(out, "Number of events: %d\n", evtCount)

	source, err := midas.OpenSource(input)
	if err != nil {
		logger.Error(err.Error())
		return 1
	}
	defer source.Close()

	p := &printer{out: out, config: configuration, dump: *dump, classes: make(map[string]int)}
	if err := p.printEvents(source, *nEvents); err != nil {
		logger.Error(err.Error())
		return 1
	}
	p.printSummary()
	return 0
}

type printer struct {
	out     io.Writer
	config  extractor.Configuration
	dump    bool
	classes map[string]int
}

func (p *printer) printEvents(source extractor.EventSource, n int) error {
	for i := 0; n <= 0 || i < n; i++ {
		event, err := source.Next()
		if err != nil {
			var decodeErr *extractor.DecodeError
			if errors.As(err, &decodeErr) && decodeErr.Recoverable {
				fmt.Fprintf(p.out, "Undecodable event: %v\n", decodeErr)
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fmt.Fprintf(p.out, "Event %d: trigger %s, readout %s, timestamp %d, %d detectors\n",
			event.EventNumber, event.TriggerType, event.ReadoutType, event.GlobalTimestamp, len(event.Detectors))
		if err := extractor.Walk(event, extractor.ChannelFunc(p.printChannelInfo)); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) printChannelInfo(event *extractor.EventType, detector int, channel int, ch *extractor.Channel) error {
	class := p.config.Classify(ch)
	p.classes[fmt.Sprintf("%s %s", ch.Type, class)]++

	fmt.Fprintf(p.out, "  det %d ch %d %q: %s, baseline %s, rate %g/%g Hz, pre %d on %d post %d, total %d (%s)\n",
		detector, channel, ch.Name, ch.Type, ch.BaselineControl, ch.SampleRateLow, ch.SampleRateHigh,
		ch.PrepulseLength, ch.OnpulseLength, ch.PostpulseLength, ch.TotalLength(), class)
	if p.dump {
		n := min(len(ch.Data), 16)
		fmt.Fprintf(p.out, "    %v\n", ch.Data[:n])
	}
	return nil
}

func (p *printer) printSummary() {
	fmt.Fprintln(p.out, "Channels seen:")
	keys := maps.Keys(p.classes)
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(p.out, "  %-24s %d\n", key, p.classes[key])
	}
}
