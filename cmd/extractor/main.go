// Command extractor walks a UBI image file, locates a named or
// indexed volume, and writes its reconstructed data payload to a
// regular file.
//
// Synopsis:
//
//	extractor -o OUT -p PEBSIZE [-i IDX | -n NAME] [-s] [-v] IMAGE
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	flags "github.com/jessevdk/go-flags"

	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/extractor"
	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/log"
)

type options struct {
	Output   string  `short:"o" long:"output" description:"output file path (required unless listing volumes)"`
	PEBSize  string  `short:"p" long:"pebsize" description:"PEB size, accepts a KiB/MiB suffix" required:"true"`
	VolIndex *int    `short:"i" long:"index" description:"volume index [0, 128)"`
	VolName  *string `short:"n" long:"name" description:"volume name"`
	SkipBad  bool    `short:"s" long:"skip-bad" description:"skip PEBs that fail header validation instead of aborting"`
	Verbose  bool    `short:"v" long:"verbose" description:"increase verbosity"`

	Args struct {
		Image string `positional-arg-name:"IMAGE" required:"true"`
	} `positional-args:"yes"`
}

func run() error {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return err
	}

	if opts.Verbose {
		log.SetVerbosity(1)
	}

	pebSize, err := humanize.ParseBytes(opts.PEBSize)
	if err != nil {
		return fmt.Errorf("extractor: invalid PEB size %q: %w", opts.PEBSize, err)
	}

	haveIndex := opts.VolIndex != nil
	haveName := opts.VolName != nil && *opts.VolName != ""
	if haveIndex && haveName {
		return fmt.Errorf("extractor: -i and -n are mutually exclusive")
	}

	if !haveIndex && !haveName {
		// Neither selector given: list volumes instead of extracting.
		eng, err := extractor.Open(opts.Args.Image, uint32(pebSize), extractor.Config{SkipBad: opts.SkipBad})
		if err != nil {
			return err
		}
		defer eng.Close()
		vols, lebSize, err := eng.ListVolumes()
		if err != nil {
			return err
		}
		fmt.Println(extractor.VolumeTable(vols, lebSize))
		return nil
	}

	if opts.Output == "" {
		return fmt.Errorf("extractor: -o is required when extracting a volume")
	}

	cfg := extractor.Config{SkipBad: opts.SkipBad}
	if haveIndex {
		cfg.VolIndex = *opts.VolIndex
	} else {
		cfg.VolName = *opts.VolName
	}

	eng, err := extractor.Open(opts.Args.Image, uint32(pebSize), cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Extract(opts.Output)
	if err != nil {
		return err
	}

	if opts.Verbose {
		log.Infof("extracted volume %d (%q): %d LEBs written, LEB size %s",
			res.VolIndex, res.VolName, res.LEBsWritten, humanize.Bytes(uint64(res.LEBSize)))
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
