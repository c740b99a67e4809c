package main

import (
	"flag"
	"log"

	"github.com/CoroLens/go-coro-lens/lens"
	"github.com/CoroLens/go-coro-lens/yieldtrace"
)

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	storageDir := flag.String("storage", "", "Directory holding recorded session storage")
	sessionLabel := flag.String("session", "", "Session label to report on, empty for all sessions")
	cacheMB := flag.Int("cachemb", 200, "Cache memory budget in MB")
	reportJsonFile := flag.String("json", "cororeport.json", "File to output trace report details")
	reportChartsFile := flag.String("charts", "cororeport.png", "File to output trace overview chart image")
	flag.Parse()

	if *storageDir == "" {
		log.Fatalf("%susage: -storage ./trace-db [-session label]", lens.ErrorLogPrefix)
	}
	storage, err := lens.NewBadgerStorage(*storageDir, *cacheMB)
	if err != nil {
		log.Fatalf("%sFailed to open storage: %v", lens.ErrorLogPrefix, err)
	}
	defer storage.Close()

	var sessions []yieldtrace.Session
	if *sessionLabel != "" {
		var ok bool
		if sessions, ok, err = lens.LoadSessions(storage, *sessionLabel); err != nil {
			log.Fatalf("%sFailed to load sessions: %v", lens.ErrorLogPrefix, err)
		} else if !ok {
			log.Fatalf("%sNo sessions recorded under label: %s", lens.ErrorLogPrefix, *sessionLabel)
		}
	} else if sessions, err = lens.LoadAllSessions(storage); err != nil {
		log.Fatalf("%sFailed to load sessions: %v", lens.ErrorLogPrefix, err)
	}
	report := lens.BuildTraceReport(sessions)

	if err := report.WriteTraceReportJSON(*reportJsonFile); err != nil {
		log.Fatalf("%sFailed to write report: %v", lens.ErrorLogPrefix, err)
	}
	if err := report.WriteTraceReportChart(*reportChartsFile); err != nil {
		log.Fatalf("%sFailed to render charts: %v", lens.ErrorLogPrefix, err)
	}
	log.Printf("Report files wrote: %s, %s", *reportJsonFile, *reportChartsFile)
}
