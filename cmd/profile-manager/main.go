package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/toolbridge/toolbridge/pkg/catalog"
	"github.com/toolbridge/toolbridge/pkg/loader"
	"github.com/toolbridge/toolbridge/pkg/models"
	"github.com/toolbridge/toolbridge/pkg/store"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]

	db, err := store.Connect(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	profileStore := store.NewPostgresStore(db)

	switch command {
	case "list":
		handleList(profileStore)
	case "show":
		handleShow(profileStore)
	case "load":
		handleLoad(profileStore)
	case "enable":
		handleToggle(profileStore, true)
	case "disable":
		handleToggle(profileStore, false)
	case "delete":
		handleDelete(profileStore)
	case "help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("API Profile Manager")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                              List all stored profiles")
	fmt.Println("  show <name>                       Show a profile's operation catalog")
	fmt.Println("  load <name>                       Re-fetch the spec and refresh the catalog")
	fmt.Println("  enable <name> <method> <path>     Enable an operation")
	fmt.Println("  disable <name> <method> <path>    Disable an operation")
	fmt.Println("  delete <name>                     Delete a profile")
	fmt.Println("  help                              Show this help message")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  profile-manager list")
	fmt.Println("  profile-manager load petstore")
	fmt.Println("  profile-manager enable petstore get /pets")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_URL                      PostgreSQL connection string")
}

func handleList(profileStore store.ProfileStore) {
	profiles, err := profileStore.List()
	if err != nil {
		log.Fatalf("Failed to list profiles: %v", err)
	}

	if len(profiles) == 0 {
		fmt.Println("No profiles found in the database.")
		return
	}

	fmt.Printf("%-20s %-15s %-6s %-10s %-8s %s\n", "Name", "Project", "Port", "Operations", "Enabled", "Spec URL")
	fmt.Println(strings.Repeat("-", 100))

	for _, p := range profiles {
		name := p.Name
		if len(name) > 18 {
			name = name[:18] + "..."
		}
		project := p.Project
		if project == "" {
			project = "default"
		}
		fmt.Printf("%-20s %-15s %-6d %-10d %-8d %s\n",
			name, project, p.Port, len(p.Operations), len(p.EnabledKeys()), p.SpecURL)
	}
}

func handleShow(profileStore store.ProfileStore) {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: profile-manager show <name>\n")
		os.Exit(1)
	}

	profile, err := profileStore.Get(os.Args[2])
	if err != nil {
		log.Fatalf("Failed to get profile: %v", err)
	}

	fmt.Printf("Profile: %s (:%d)\n", profile.Name, profile.Port)
	fmt.Printf("Spec URL: %s\n\n", profile.SpecURL)

	for key, desc := range profile.Operations {
		mark := " "
		if profile.Enabled[key] {
			mark = "x"
		}
		summary := desc.Summary
		if len(summary) > 50 {
			summary = summary[:50] + "..."
		}
		fmt.Printf("  [%s] %-35s %s\n", mark, key, summary)
	}
}

func handleLoad(profileStore store.ProfileStore) {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: profile-manager load <name>\n")
		os.Exit(1)
	}

	profile, err := profileStore.Get(os.Args[2])
	if err != nil {
		log.Fatalf("Failed to get profile: %v", err)
	}

	doc, err := loader.Load(context.Background(), profile.SpecURL)
	if err != nil {
		log.Fatalf("Failed to load spec: %v", err)
	}
	profile.Spec = doc
	catalog.SeedEnabled(profile, catalog.Build(doc))

	if err := profileStore.Put(profile); err != nil {
		log.Fatalf("Failed to save profile: %v", err)
	}

	fmt.Printf("Successfully refreshed '%s': %d operations cataloged\n", profile.Name, len(profile.Operations))
}

func handleToggle(profileStore store.ProfileStore, enable bool) {
	verb := "enable"
	if !enable {
		verb = "disable"
	}
	if len(os.Args) < 5 {
		fmt.Fprintf(os.Stderr, "Usage: profile-manager %s <name> <method> <path>\n", verb)
		os.Exit(1)
	}

	profile, err := profileStore.Get(os.Args[2])
	if err != nil {
		log.Fatalf("Failed to get profile: %v", err)
	}

	key := models.OperationKey(os.Args[3], os.Args[4])
	if _, known := profile.Operations[key]; !known {
		log.Fatalf("Profile %s has no operation %q (run load first)", profile.Name, key)
	}
	profile.Enabled[key] = enable

	if err := profileStore.Put(profile); err != nil {
		log.Fatalf("Failed to save profile: %v", err)
	}

	fmt.Printf("Successfully %sd %q on '%s'\n", verb, key, profile.Name)
}

func handleDelete(profileStore store.ProfileStore) {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: profile-manager delete <name>\n")
		os.Exit(1)
	}

	if err := profileStore.Delete(os.Args[2]); err != nil {
		log.Fatalf("Failed to delete profile: %v", err)
	}

	fmt.Printf("Successfully deleted profile '%s'\n", os.Args[2])
}
