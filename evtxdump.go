package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/rawsec/evtxrecord/codepage"
	"github.com/rawsec/evtxrecord/config"
	"github.com/rawsec/evtxrecord/evtx"
	"github.com/rawsec/evtxrecord/log"
)

const version = "1.1"

var (
	app = kingpin.New("evtxdump", "Dump the records of EVTX files as JSON, one <name>.json per input.")

	configPath = app.Flag("config", "YAML configuration file.").Short('c').String()
	cpFlag     = app.Flag("codepage", "ASCII codepage of 8-bit strings.").Int()
	eventIDs   = app.Flag("event", "Comma separated event IDs to keep.").Short('e').String()
	withXML    = app.Flag("xml", "Add the rendered XML to every record.").Bool()
	logLevel   = app.Flag("log_level", "debug, info, error or critical.").String()
	logFile    = app.Flag("log_file", "Rotated log file instead of stderr.").String()
	files      = app.Arg("files", "EVTX files.").Required().ExistingFiles()
)

type summary struct {
	records  uint64
	kept     uint64
	failed   uint64
	bytes    uint64
	duration time.Duration
}

func parseEventIDs(s string) map[uint32]bool {
	var ids map[uint32]bool
	for _, i := range strings.Split(s, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(i), 10, 16)
		if err != nil {
			continue
		}
		if ids == nil {
			ids = make(map[uint32]bool)
		}
		ids[uint32(id)] = true
	}
	return ids
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *cpFlag != 0 {
		cfg.Codepage = *cpFlag
	}
	if *withXML {
		cfg.Output.XML = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	return cfg, cfg.Validate()
}

func dumpFile(ctx context.Context, path string, cfg *config.Config, ids map[uint32]bool) (s summary, err error) {
	start := time.Now()
	// stops the decoding workers when the dump ends early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ef, err := evtx.OpenDirty(path, cfg.Options())
	if err != nil {
		return
	}
	defer ef.Close()

	name := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	records, err := ef.Records(ctx)
	if err != nil {
		return
	}
	if _, err = w.WriteString("["); err != nil {
		return
	}
	for r := range records {
		s.records++
		if !keep(r, ids) {
			r.Close()
			continue
		}
		dict, derr := r.ToDict(cfg.Output.XML)
		r.Close()
		if derr != nil {
			s.failed++
			log.Debugf("%s: record %d: %s", path, r.Identifier(), derr)
			continue
		}
		data, jerr := json.Marshal(dict)
		if jerr != nil {
			s.failed++
			log.Debugf("%s: record %d: %s", path, r.Identifier(), jerr)
			continue
		}
		if s.kept > 0 {
			data = append([]byte{','}, data...)
		}
		if _, err = w.Write(data); err != nil {
			return
		}
		s.kept++
		s.bytes += uint64(len(data))
	}
	if _, err = w.WriteString("]\n"); err != nil {
		return
	}
	err = w.Flush()
	s.duration = time.Since(start)
	return
}

func keep(r *evtx.Record, ids map[uint32]bool) bool {
	if ids == nil {
		return true
	}
	id, err := r.EventIdentifier()
	return err == nil && ids[id&0xffff]
}

func main() {
	app.Version(version)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig()
	kingpin.FatalIfError(err, "configuration")
	kingpin.FatalIfError(cfg.InitLogger(), "logger")
	log.Debugf("codepage %s, %d workers", codepage.Codepage(cfg.Codepage), cfg.Options().Workers)

	ids := parseEventIDs(*eventIDs)
	ctx := context.Background()
	for _, path := range *files {
		s, err := dumpFile(ctx, path, cfg, ids)
		if err != nil {
			log.Errorf("%s: %s", path, err)
			continue
		}
		log.Infof("%s: %s records, %s kept, %s failed, %s of JSON in %s\n",
			path,
			humanize.Comma(int64(s.records)),
			humanize.Comma(int64(s.kept)),
			humanize.Comma(int64(s.failed)),
			humanize.Bytes(s.bytes),
			s.duration.Round(time.Millisecond))
	}
}
