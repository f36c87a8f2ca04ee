package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/dnjord/glasir-login/internal"
	"github.com/dnjord/glasir-login/internal/config"
)

var BuildVersion = "dev"

func main() {
	conf := flag.String("config", "config.json", "path to config file")
	configInit := flag.String("config-init", "", "generate starter config file at specified path")
	profileName := flag.String("profile", "default", "identity profile to operate on")
	check := flag.Bool("check", false, "check session validity and exit without acquiring")
	deleteSession := flag.Bool("delete-session", false, "delete the profile's session record and exit")
	createProfile := flag.Bool("create-profile", false, "store credentials for the profile and exit")
	listProfiles := flag.Bool("list-profiles", false, "list profiles with stored credentials and exit")
	visible := flag.Bool("visible", false, "run the browser visibly instead of headless")
	timing := flag.Bool("timing", false, "log timing metrics for acquisition phases")
	logFile := flag.String("log-file", "", "also write logs to this file")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(BuildVersion)
		return
	}

	if *configInit != "" {
		if err := config.WriteSample(*configInit); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated starter config at: %s\n", *configInit)
		return
	}

	// Secrets referenced from the config may live in a local .env file.
	_ = godotenv.Load()

	cfg, err := config.Load(*conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags override config for per-run knobs.
	if *visible {
		cfg.Browser.Headless = false
	}
	if *timing {
		cfg.Log.TimingMetrics = true
	}
	if *logFile != "" {
		cfg.Log.FilePath = *logFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	front, err := internal.NewFront(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer front.Close()

	switch {
	case *createProfile:
		if err := runCreateProfile(front, *profileName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case *listProfiles:
		profiles, err := front.Profiles()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(profiles) == 0 {
			fmt.Println("No profiles found.")
			return
		}
		for _, name := range profiles {
			fmt.Println(name)
		}

	case *deleteSession:
		if front.DeleteSession(ctx, *profileName) {
			fmt.Printf("Deleted session for profile %q.\n", *profileName)
		} else {
			fmt.Printf("No session to delete for profile %q.\n", *profileName)
		}

	case *check:
		valid, reason := front.CheckValidity(ctx, *profileName)
		fmt.Printf("Session for profile %q: valid=%t (%s)\n", *profileName, valid, reason)
		if !valid {
			os.Exit(1)
		}

	default:
		if !front.AcquireSession(ctx, *profileName) {
			fmt.Fprintf(os.Stderr, "Session acquisition failed for profile %q.\n", *profileName)
			os.Exit(1)
		}
		fmt.Printf("Session acquired for profile %q.\n", *profileName)
	}
}

// runCreateProfile prompts for credentials on the terminal. The password is
// read without echo.
func runCreateProfile(front *internal.Front, name string) error {
	fmt.Printf("Creating profile %q.\n", name)

	fmt.Print("Email: ")
	var email string
	if _, err := fmt.Scanln(&email); err != nil {
		return fmt.Errorf("reading email: %w", err)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if err := front.CreateProfile(name, strings.TrimSpace(email), string(password)); err != nil {
		return err
	}
	fmt.Printf("Profile %q saved.\n", name)
	return nil
}
