// command controller runs the ammonia-scrubber control core's event loop
// on the target appliance.
package main

import (
	"fmt"
	"log"
	"os"
	"time"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	log.Println("scrubcore: loading...")

	l, cause, err := Init()
	if err != nil {
		return err
	}
	log.Printf("scrubcore: boot cause %s, starting state %s", cause, l.Service.State())

	for {
		if err := l.Tick(); err != nil {
			log.Printf("tick: %v", err)
		}
		time.Sleep(l.TickPeriod)
	}
}
