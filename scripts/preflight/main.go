package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/chidi150c/tradegate/internal/config"
)

func fail(msg string) { log.Fatalf("FAIL: %s", msg) }
func pass(msg string) { fmt.Println("PASS:", msg) }

func main() {
	envPath := ".env"
	if len(os.Args) > 1 {
		envPath = os.Args[1]
	}

	// Load .env (do not overwrite existing env)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fail("cannot load " + envPath)
		}
		pass(envPath + " loaded")
	} else {
		fmt.Printf("NOTE: %s not found, checking the process environment only\n", envPath)
	}

	report := config.Preflight(os.Getenv)
	fmt.Print(report.String())
	if !report.OK() {
		fail("preflight checks failed")
	}
	pass("Preflight completed")
}
