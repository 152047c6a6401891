package main

import (
	"log"

	"github.com/MrSnakeDoc/concierge/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ concierge failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ concierge stopped: %v", err)
	}
}
