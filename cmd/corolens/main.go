package main

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/CoroLens/go-coro-lens/lens"
	"github.com/CoroLens/go-coro-lens/lens/cmd"
)

const pprofDebug = false

func main() {
	log.SetFlags(log.LstdFlags)

	if pprofDebug {
		go func() {
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Printf("pprof server failure: %v", err)
			}
		}()
	}

	config, err := cmd.ParseFlags(nil) // No custom flags for standard corolens
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
	mode, err := lens.ParseMode(config.Mode)
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}

	engine := lens.NewEngineWithOptions(mode, config.EngineOptions())
	results, err := lens.InstrumentTree(engine, config.TargetDir, lens.TreeOptions{
		Write:   config.Write,
		Diff:    config.Diff,
		OutDir:  config.OutDir,
		CacheMB: config.CacheMB,
	})
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}

	var changed int
	for _, result := range results {
		if !result.Changed {
			continue
		}
		changed++
		if config.Diff {
			fmt.Print(result.Diff)
		}
	}
	log.Printf("Instrumented %d of %d files", changed, len(results))
}
