// Command writer erases a window of physical eraseblocks on an MTD
// partition and streams a payload into them, optionally constructing
// a UBI image as it goes.
//
// Synopsis:
//
//	writer [OPTIONS] MTD_DEVICE [INPUTFILE]
package main

import (
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/flash"
	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/ioadapter"
	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/log"
	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/writer"
)

const version = "writer (mtd-utils Go rewrite) 1.0"

var (
	numBlocks    = flag.IntP("blocks", "b", -1, "number of PEBs to erase/write (default: to device end)")
	cleanMarkers = flag.BoolP("clean-markers", "c", false, "write JFFS2 clean markers on the first page of each written PEB")
	fromStdin    = flag.BoolP("stdin", "i", false, "read payload from stdin")
	skip         = flag.Int64P("skip", "k", 0, "skip N bytes into the input file")
	length       = flag.Int64P("length", "l", -1, "cap payload length at N bytes")
	volID        = flag.Uint32P("vol-id", "n", 0, "UBI volume id")
	volName      = flag.StringP("vol-name", "N", "", "UBI volume name")
	startPEB     = flag.IntP("start", "s", 0, "first PEB index")
	volLEBs      = flag.Int64P("vol-lebs", "S", 0, "volume LEB count (0 = auto, -k = reserve k spares, >0 = exact)")
	ubiMode      = flag.BoolP("ubi", "u", false, "enable UBI mode")
	quiet        = flag.BoolP("quiet", "q", false, "decrease verbosity")
	verbose      = flag.CountP("verbose", "v", "increase verbosity")
	showHelp     = flag.BoolP("help", "h", false, "show help and exit")
	showVersion  = flag.BoolP("version", "V", false, "show version and exit")
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: writer [OPTIONS] MTD_DEVICE [INPUTFILE]")
	flag.PrintDefaults()
}

func run() error {
	flag.Parse()

	if *showHelp {
		usage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	switch {
	case *quiet:
		log.SetVerbosity(-1)
	case *verbose > 0:
		log.SetVerbosity(*verbose)
	default:
		log.SetVerbosity(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		usage()
		return fmt.Errorf("writer: missing MTD_DEVICE argument")
	}
	mtdPath := args[0]

	if *fromStdin && len(args) > 1 {
		return fmt.Errorf("writer: -i is mutually exclusive with an INPUTFILE argument")
	}
	if *fromStdin && *skip != 0 {
		return ioadapter.ErrSkipWithStdin
	}

	dev, err := flash.OpenMTD(mtdPath)
	if err != nil {
		return err
	}
	defer dev.Close()

	geom, err := dev.Info()
	if err != nil {
		return err
	}

	end := geom.PEBCount()
	if *numBlocks >= 0 {
		end = *startPEB + *numBlocks
	}

	var src *ioadapter.Source
	switch {
	case *fromStdin:
		src = ioadapter.NewStdinSource(*length)
	case len(args) > 1:
		src, err = ioadapter.NewFileSource(args[1], *skip, *length)
		if err != nil {
			return err
		}
		defer src.Close()
	}

	mode := writer.ModeRaw
	if *ubiMode {
		mode = writer.ModeUBI
	}

	cfg := writer.Config{
		Mode:         mode,
		StartPEB:     *startPEB,
		EndPEB:       end,
		CleanMarkers: *cleanMarkers,
		VolID:        *volID,
		VolName:      *volName,
		VolLEBsArg:   *volLEBs,
	}

	var reader io.Reader
	if src != nil {
		reader = src
	}

	eng, err := writer.New(dev, reader, cfg)
	if err != nil {
		return err
	}

	res, err := eng.Run()
	if log.Verbosity() > 0 {
		fmt.Println(writer.Report(res, geom.EBSize))
	}
	if warnings := eng.Warnings(); warnings != nil {
		log.Warnf("run completed with warnings: %v", warnings)
	}
	return err
}

func main() {
	if err := run(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
