// printhub bridges a POS to a CTS310ii fiscal printer over serial and
// exports the government sales book from the printer's audit memory.
//
// Without flags it runs as a daemon with background status polling;
// each flag below runs one operation and exits.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/loggo"

	"printhub/internal/config"
	"printhub/internal/hub"
	"printhub/internal/salesbook"
	"printhub/internal/storage"
	"printhub/pkg/cts310"
)

var log = loggo.GetLogger("printhub")

func main() {
	var (
		configPath    = flag.String("config", "config.json", "path to config.json")
		logLevel      = flag.String("log", "<root>=INFO", "loggo logger specification")
		status        = flag.Bool("status", false, "print device status and exit")
		xReport       = flag.Bool("x", false, "print an X report and exit")
		zReport       = flag.Bool("z", false, "print a Z report and exit")
		keepDay       = flag.Bool("keep-day", false, "with -z: print a copy without closing the fiscal day")
		exportDaily   = flag.String("export-daily", "", "generate the daily sales book for DATE (YYYY-MM-DD) and exit")
		exportMonthly = flag.String("export-monthly", "", "generate the monthly sales book for YYYY-MM and exit")
		reprint       = flag.String("reprint", "", "reprint stored document NUMBER and exit")
		noSale        = flag.String("no-sale", "", "print a no-sale document with the given reason and exit")
	)
	flag.Parse()

	if err := loggo.ConfigureLoggers(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "bad -log specification: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Criticalf("%v", err)
		os.Exit(1)
	}

	transport, err := cts310.NewSerialTransport(cfg.Serial)
	if err != nil {
		log.Criticalf("open serial port: %v", err)
		os.Exit(1)
	}
	driver := cts310.NewDriver(cfg.Driver, transport)
	if err := driver.Connect(); err != nil {
		log.Criticalf("connect printer: %v", err)
		os.Exit(1)
	}
	defer driver.Disconnect()

	sequences, err := storage.NewSequenceStore(cfg.SequenceFile)
	if err != nil {
		log.Criticalf("open sequence store: %v", err)
		os.Exit(1)
	}

	reader := cts310.NewMemoryReader(transport)
	generator := salesbook.NewGenerator(reader, cfg.SalesBook)
	h := hub.New(driver, generator, sequences)

	switch {
	case *status:
		st, err := h.GetStatus()
		if err != nil {
			log.Criticalf("status: %v", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(out))

	case *xReport:
		run("x report", h.PrintXReport())

	case *zReport:
		run("z report", h.PrintZReport(!*keepDay))

	case *exportDaily != "":
		date, err := time.ParseInLocation("2006-01-02", *exportDaily, time.Local)
		if err != nil {
			log.Criticalf("bad -export-daily date %q, want YYYY-MM-DD", *exportDaily)
			os.Exit(1)
		}
		path, err := h.ExportDaily(date)
		if err != nil {
			log.Criticalf("daily export: %v", err)
			os.Exit(1)
		}
		fmt.Println(path)

	case *exportMonthly != "":
		month, err := time.Parse("2006-01", *exportMonthly)
		if err != nil {
			log.Criticalf("bad -export-monthly month %q, want YYYY-MM", *exportMonthly)
			os.Exit(1)
		}
		path, err := h.ExportMonthly(month.Year(), month.Month())
		if err != nil {
			log.Criticalf("monthly export: %v", err)
			os.Exit(1)
		}
		fmt.Println(path)

	case *reprint != "":
		run("reprint", h.ReprintDocument(*reprint))

	case *noSale != "":
		run("no sale", h.PrintNoSale(*noSale))

	default:
		daemon(h, cfg)
	}
}

func run(name string, err error) {
	if err != nil {
		log.Criticalf("%s: %v", name, err)
		os.Exit(1)
	}
	log.Infof("%s done", name)
}

// daemon keeps the bridge alive with a background status poll until
// SIGINT or SIGTERM.
func daemon(h *hub.Hub, cfg *config.Config) {
	log.Infof("printhub daemon started")

	statusPoller := hub.NewPoller("status",
		time.Duration(cfg.Pollers.StatusInterval)*time.Second,
		func() {
			st, err := h.GetStatus()
			if err != nil {
				log.Warningf("status poll failed: %v", err)
				return
			}
			if !st.Online {
				log.Warningf("printer offline")
			}
			if st.CoverOpen {
				log.Warningf("printer cover open")
			}
			if st.PaperLow {
				log.Warningf("printer paper low")
			}
		})
	statusPoller.Start()
	defer statusPoller.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	log.Infof("received %s, shutting down", s)
}
