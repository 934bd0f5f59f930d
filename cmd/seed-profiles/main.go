package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/toolbridge/toolbridge/pkg/catalog"
	"github.com/toolbridge/toolbridge/pkg/loader"
	"github.com/toolbridge/toolbridge/pkg/models"
	"github.com/toolbridge/toolbridge/pkg/store"
)

// ProfileConfig defines one profile to seed.
type ProfileConfig struct {
	Name    string `json:"name" yaml:"name"`
	Project string `json:"project" yaml:"project"`
	SpecURL string `json:"spec_url" yaml:"spec_url"`
	Port    int    `json:"port" yaml:"port"`

	AuthHeaderName  string `json:"auth_header_name" yaml:"auth_header_name"`
	AuthHeaderValue string `json:"auth_header_value" yaml:"auth_header_value"`
	AuthQueryName   string `json:"auth_query_name" yaml:"auth_query_name"`
	AuthQueryValue  string `json:"auth_query_value" yaml:"auth_query_value"`
	LLMKey          string `json:"llm_key" yaml:"llm_key"`

	// Enable lists operation keys ("get /pets") to enable after cataloging.
	Enable []string `json:"enable" yaml:"enable"`

	// SkipLoad stores the profile without fetching the spec.
	SkipLoad bool `json:"skip_load" yaml:"skip_load"`
}

// SeedConfig defines the seeding configuration file.
type SeedConfig struct {
	Profiles []ProfileConfig `json:"profiles" yaml:"profiles"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: seed-profiles <config.yaml|config.json>\n")
		os.Exit(1)
	}
	configFile := os.Args[1]

	db, err := store.Connect(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := store.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	profileStore := store.NewPostgresStore(db)
	seedFromConfig(profileStore, configFile)
}

func seedFromConfig(profileStore store.ProfileStore, configFile string) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	var config SeedConfig
	if strings.ToLower(filepath.Ext(configFile)) == ".json" {
		err = json.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		log.Fatalf("Failed to parse config file: %v", err)
	}

	fmt.Printf("Seeding %d profiles from config...\n", len(config.Profiles))

	ctx := context.Background()
	seeded := 0
	for _, pc := range config.Profiles {
		profile := models.NewAPIProfile(pc.Name, pc.SpecURL, pc.Port)
		profile.Project = pc.Project
		profile.AuthHeaderName = pc.AuthHeaderName
		profile.AuthHeaderValue = pc.AuthHeaderValue
		profile.AuthQueryName = pc.AuthQueryName
		profile.AuthQueryValue = pc.AuthQueryValue
		profile.LLMKey = pc.LLMKey

		if !pc.SkipLoad {
			doc, err := loader.Load(ctx, profile.SpecURL)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Failed to load spec for %s: %v\n", pc.Name, err)
				continue
			}
			profile.Spec = doc
			catalog.SeedEnabled(profile, catalog.Build(doc))
			for _, key := range pc.Enable {
				if _, known := profile.Operations[key]; !known {
					fmt.Fprintf(os.Stderr, "Warning: %s has no operation %q\n", pc.Name, key)
					continue
				}
				profile.Enabled[key] = true
			}
		}

		if err := profileStore.Put(profile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to save %s: %v\n", pc.Name, err)
			continue
		}

		fmt.Printf("✓ Seeded '%s' (:%d) with %d operations, %d enabled\n",
			profile.Name, profile.Port, len(profile.Operations), len(profile.EnabledKeys()))
		seeded++
	}

	fmt.Printf("\nSeeding completed: %d profiles saved\n", seeded)
}
