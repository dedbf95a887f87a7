package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		n    int
		want TraceClass
	}{
		{0, TraceIgnored},
		{1024, TraceIgnored},
		{1025, TraceShort},
		{4095, TraceShort},
		{4096, TraceQualifying},
		{10000, TraceQualifying},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.n, 4096, 1024), "n=%d", tt.n)
	}

	config := DefaultConfiguration()
	ch := makeChannel(Charge, 100, 1000, 100)
	assert.Equal(t, TraceShort, config.Classify(&ch))
}

func TestTotalLength(t *testing.T) {
	tests := []struct {
		pre, on, post uint32
		want          uint64
	}{
		{0, 0, 0, 0},
		{0, 4096, 0, 4096},
		{1024, 2048, 1024, 4096},
		{1, 4999, 0, 5000},
		{1 << 31, 1 << 31, 5, 1<<32 + 5},
		{math.MaxUint32, math.MaxUint32, math.MaxUint32, 3 * math.MaxUint32},
	}
	for _, tt := range tests {
		if strconv.IntSize < 64 && tt.want > math.MaxInt32 {
			continue
		}
		ch := Channel{PrepulseLength: tt.pre, OnpulseLength: tt.on, PostpulseLength: tt.post}
		assert.Equal(t, tt.want, uint64(ch.TotalLength()), "%d+%d+%d", tt.pre, tt.on, tt.post)
	}
}

func TestArrayNames(t *testing.T) {
	assert.Equal(t, "42_0_Phonon_4096", ArrayName(42, 0, Phonon, 4096))
	assert.Equal(t, "4294967295_12_Charge_8192", ArrayName(4294967295, 12, Charge, 8192))
	assert.Equal(t, "42_3_1_Charge_4096", ChannelArrayName(42, 3, 1, Charge, 4096))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Unknown", TriggerUnknown.String())
	assert.Equal(t, "Pulse", TriggerPulse.String())
	assert.Equal(t, "Unknown", TriggerType(17).String())
	assert.Equal(t, "None", ReadoutNone.String())
	assert.Equal(t, "Calibration", ReadoutCalibration.String())
	assert.Equal(t, "Unknown", ReadoutType(3).String())
	assert.Equal(t, "Active", BaselineActive.String())
}

func TestMetadataWriter(t *testing.T) {
	var buf bytes.Buffer
	mw, err := NewMetadataWriter(&buf)
	require.NoError(t, err)

	for _, n := range []uint32{5, 2, 9} {
		require.NoError(t, mw.Write(&EventType{EventNumber: n, TriggerType: TriggerRandom, GlobalTimestamp: uint64(n) << 33}))
	}
	require.NoError(t, mw.Close())

	want := "event,trigger_type,readout_type,global_timestamp\n" +
		"5,Random,None,42949672960\n" +
		"2,Random,None,17179869184\n" +
		"9,Random,None,77309411328\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 3, mw.Rows)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left") }

func TestMetadataWriterFailure(t *testing.T) {
	_, err := NewMetadataWriter(failingWriter{})
	assert.ErrorContains(t, err, "no space left")

	_, err = CreateMetadataFile(filepath.Join(t.TempDir(), "missing", "x.csv"))
	var openErr *ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"07180808_1558_F0001.mid.gz":        "07180808_1558_F0001",
		"/data/raw/07180808_1558_F0001.mid": "07180808_1558_F0001",
		"run.mid.lz4":                       "run",
		"plain":                             "plain",
		"archive.tar":                       "archive",
	}
	for input, want := range tests {
		assert.Equal(t, want, BaseName(input), input)
	}

	config := DefaultConfiguration()
	assert.Equal(t, filepath.Join("mid_npz", "a.npz"), config.ArchivePath("x/a.mid.gz"))
	assert.Equal(t, filepath.Join("metadata", "a.csv"), config.MetadataPath("x/a.mid.gz"))
	assert.Equal(t, filepath.Join("mid_npz", "a.txt"), config.BoundsPath("x/a.mid.gz"))
	config.ArchiveFormat = FormatHdf5
	assert.Equal(t, filepath.Join("mid_npz", "a.h5"), config.ArchivePath("a.mid"))
}

func TestLoadConfiguration(t *testing.T) {
	config, err := LoadConfiguration("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfiguration(), config)

	dir := t.TempDir()
	jsonFile := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`{"max_events": 10, "layout": "channel", "write_bounds": true}`), 0o644))
	config, err = LoadConfiguration(jsonFile)
	require.NoError(t, err)
	assert.Equal(t, 10, config.MaxEvents)
	assert.Equal(t, LayoutChannel, config.Layout)
	assert.True(t, config.WriteBounds)
	assert.Equal(t, 4096, config.Threshold)

	yamlFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte("skip: 3\narchive_format: hdf5\ncatalog_driver: sqlite\n"), 0o644))
	config, err = LoadConfiguration(yamlFile)
	require.NoError(t, err)
	assert.Equal(t, 3, config.Skip)
	assert.Equal(t, FormatHdf5, config.ArchiveFormat)
	driver, dsn := config.CatalogDSN()
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, "./catalog.db", dsn)

	_, err = LoadConfiguration(filepath.Join(dir, "missing.json"))
	var openErr *ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Configuration){
		"threshold":   func(c *Configuration) { c.Threshold = 0 },
		"short min":   func(c *Configuration) { c.ShortTraceMin = 4096 },
		"skip":        func(c *Configuration) { c.Skip = -1 },
		"layout":      func(c *Configuration) { c.Layout = "row" },
		"format":      func(c *Configuration) { c.ArchiveFormat = "zarr" },
		"policy":      func(c *Configuration) { c.OnDecodeError = "ignore" },
		"compression": func(c *Configuration) { c.CompressionLevel = 12 },
	}
	for name, mutate := range tests {
		config := DefaultConfiguration()
		mutate(&config)
		assert.Error(t, config.Validate(), name)
	}
	assert.NoError(t, DefaultConfiguration().Validate())
}

func TestCatalogDSN(t *testing.T) {
	config := DefaultConfiguration()
	driver, _ := config.CatalogDSN()
	assert.Empty(t, driver)

	config.CatalogDriver = "mysql"
	config.User, config.Passwd, config.Host, config.DBName = "cdms", "secret", "db.local", "runs"
	driver, dsn := config.CatalogDSN()
	assert.Equal(t, "mysql", driver)
	assert.Equal(t, "cdms:secret@(db.local:3306)/runs?parseTime=true", dsn)
}

type recorder struct {
	calls []string
}

func (r *recorder) BeginDetector(_ *EventType, d int) error {
	r.calls = append(r.calls, fmt.Sprintf("begin %d", d))
	return nil
}

func (r *recorder) VisitChannel(_ *EventType, _ int, _ int, ch *Channel) error {
	r.calls = append(r.calls, "visit "+ch.Name)
	return nil
}

func (r *recorder) EndDetector(*EventType, int) error {
	r.calls = append(r.calls, "end")
	return nil
}

func TestWalk(t *testing.T) {
	event := &EventType{Detectors: []Detector{
		{Channels: []Channel{{Name: "a"}, {Name: "b"}}},
		{},
		{Channels: []Channel{{Name: "c"}}},
	}}
	r := &recorder{}
	require.NoError(t, Walk(event, r))
	assert.Equal(t, []string{
		"begin 0", "visit a", "visit b", "end",
		"begin 1", "end",
		"begin 2", "visit c", "end",
	}, r.calls)

	stop := errors.New("stop")
	var seen []string
	err := Walk(event, ChannelFunc(func(_ *EventType, _ int, _ int, ch *Channel) error {
		seen = append(seen, ch.Name)
		if ch.Name == "b" {
			return stop
		}
		return nil
	}))
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestWriteBounds(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "run.txt")
	require.NoError(t, WriteBounds(filename, []BoundsEntry{{"1_0_Phonon_4096", 4}, {"1_1_Phonon_4096", 1}, {"2_0_Charge_4096", 2}}))

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "1_0_Phonon_4096 0 4\n1_1_Phonon_4096 4 5\n2_0_Charge_4096 5 7\n", string(content))
}

func TestStdLogger(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewStdLogger(&stdout, &stderr)
	logger.Info("Processing event 3", "extractor")
	logger.Error("error reading event")

	assert.Regexp(t, `^\[\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}\] \[extractor\] Processing event 3\n$`, stdout.String())
	assert.Contains(t, stderr.String(), `"msg":"error reading event"`)
	assert.Contains(t, stderr.String(), `"level":"ERROR"`)
}

func TestHandler(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(NewHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Debug("hidden")
	assert.Empty(t, out.String())

	logger.With("module", "midas").Warn("skipping event", "offset", 128, slog.Group("bank", "name", "CDCH"))
	assert.Regexp(t, `^\[[0-9/: ]+\] \[WARN\] \[midas\] \[128\] \[CDCH\] skipping event\n$`, out.String())

	out.Reset()
	logger.WithGroup("g").Info("plain")
	assert.Regexp(t, `^\[[0-9/: ]+\] plain\n$`, out.String())
}
