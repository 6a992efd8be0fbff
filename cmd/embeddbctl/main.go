// Command embeddbctl opens an embeddb engine against a directory of region
// files, prints layout and stats information, and can replay a CSV of
// key,data pairs through Put for manual exercise. It is an inspection tool,
// not a benchmark: it reports no latencies or throughput.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/CookiedOutMonster/EmbedDB-Desktop"
)

// verbosity is a small bit-flag set, checked with has() much like
// embeddb.Has; the numeric -v level is translated into these bits.
type verbosity uint8

const (
	vInfo verbosity = 1 << iota
	vDebug
)

func (v verbosity) has(f verbosity) bool { return v&f != 0 }

func main() {
	dir := flag.String("dir", ".", "directory holding data.db/index.db")
	keySize := flag.Int("keysize", 4, "key width in bytes (1-8)")
	dataSize := flag.Int("datasize", 12, "fixed data payload size in bytes")
	pageSize := flag.Int("pagesize", 512, "page size in bytes")
	numDataPages := flag.Uint("datapages", 128, "number of physical pages in the data region")
	eraseSize := flag.Uint("erasesize", 8, "pages per erase block")
	useIndex := flag.Bool("index", false, "enable the bitmap index region")
	reset := flag.Bool("reset", false, "start from an empty region (RESET_DATA)")
	replayCSV := flag.String("replay", "", "path to a key,data CSV to Put through the engine")
	verbose := flag.Int("v", 0, "verbosity: 0=warn, 1=info, 2=debug")
	flag.Parse()

	var verb verbosity
	if *verbose >= 1 {
		verb |= vInfo
	}
	if *verbose >= 2 {
		verb |= vDebug
	}

	logger := log.StandardLogger()
	switch {
	case verb.has(vDebug):
		logger.SetLevel(log.DebugLevel)
	case verb.has(vInfo):
		logger.SetLevel(log.InfoLevel)
	default:
		logger.SetLevel(log.WarnLevel)
	}

	cfg, closeFn, err := buildConfig(*dir, *keySize, *dataSize, *pageSize, uint32(*numDataPages), uint32(*eraseSize), *useIndex, *reset, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "embeddbctl:", err)
		os.Exit(1)
	}
	defer closeFn()

	eng, err := embeddb.Init(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "embeddbctl: init:", err)
		os.Exit(1)
	}
	defer eng.Close()

	if *replayCSV != "" {
		n, err := replay(eng, *replayCSV, *keySize, *dataSize)
		if err != nil {
			fmt.Fprintln(os.Stderr, "embeddbctl: replay:", err)
			os.Exit(1)
		}
		fmt.Printf("replayed %d records\n", n)
	}

	printStats(eng)
}

func buildConfig(dir string, keySize, dataSize, pageSize int, numDataPages, eraseSize uint32, useIndex, reset bool, logger *log.Logger) (*embeddb.Config, func(), error) {
	dataStorage, err := embeddb.OpenFileStorage(filepath.Join(dir, "data.db"), pageSize, false)
	if err != nil {
		return nil, nil, err
	}

	params := embeddb.Parameters(0)
	params = embeddb.Set(params, embeddb.UseMaxMin)
	if reset {
		params = embeddb.Set(params, embeddb.ResetData)
	}

	var idxStorage embeddb.Storage
	closers := []func() error{dataStorage.Close}
	if useIndex {
		params = embeddb.Set(params, embeddb.UseIndex)
		params = embeddb.Set(params, embeddb.UseBitmap)
		is, err := embeddb.OpenFileStorage(filepath.Join(dir, "index.db"), pageSize, false)
		if err != nil {
			return nil, nil, err
		}
		idxStorage = is
		closers = append(closers, is.Close)
	}

	cfg := &embeddb.Config{
		KeySize:            keySize,
		DataSize:           dataSize,
		PageSize:           pageSize,
		BufferSizeInBlocks: 6,
		BitmapSize:         8,
		Parameters:         params,
		CompareKey:         embeddb.LittleEndianComparator,
		CompareData:        embeddb.BytesComparator,
		NumDataPages:       numDataPages,
		NumIndexPages:      numDataPages,
		EraseSizeInPages:   eraseSize,
		SplineCapacity:     300,
		Logger:             logger,
		DataStorage:        dataStorage,
		IndexStorage:       idxStorage,
	}
	if useIndex {
		cfg.Bitmap = embeddb.BitmapCallbacks{
			UpdateBitmap: func(data, bm []byte) {
				if len(data) == 0 || len(bm) == 0 {
					return
				}
				bucket := int(data[0]) / 32
				bm[bucket] |= 1
			},
			BuildBitmapFromRange: func(min, max, bm []byte) {
				for i := range bm {
					bm[i] = 0xFF
				}
			},
		}
	}

	return cfg, func() {
		for _, c := range closers {
			_ = c()
		}
	}, nil
}

func replay(eng *embeddb.Engine, path string, keySize, dataSize int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		kv, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return count, err
		}
		dv, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return count, err
		}
		key := make([]byte, keySize)
		for i := 0; i < keySize; i++ {
			key[i] = byte(kv)
			kv >>= 8
		}
		data := make([]byte, dataSize)
		for i := 0; i < dataSize && i < 8; i++ {
			data[i] = byte(dv)
			dv >>= 8
		}
		if err := eng.Put(key, data); err != nil {
			return count, err
		}
		count++
	}
	return count, scanner.Err()
}

func printStats(eng *embeddb.Engine) {
	s := eng.Stats()
	fmt.Printf("data pages written:  %d\n", s.DataPagesWritten)
	fmt.Printf("index pages written: %d\n", s.IndexPagesWritten)
	fmt.Printf("var pages written:   %d\n", s.VarPagesWritten)
	fmt.Printf("buffer hits/misses:  %d/%d\n", s.BufferHits, s.BufferMisses)
	fmt.Printf("spline overflows:    %d\n", s.SplineOverflows)
}
