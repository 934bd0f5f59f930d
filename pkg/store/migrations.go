package store

import (
	"database/sql"
	"fmt"
	"log"
)

// CreateAPIProfilesTable creates the api_profiles table with its indexes and
// updated_at trigger.
func CreateAPIProfilesTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS api_profiles (
		name VARCHAR(255) PRIMARY KEY,
		project VARCHAR(255) NOT NULL DEFAULT '',
		spec_url TEXT NOT NULL,
		port INTEGER NOT NULL,
		auth_header_name VARCHAR(255) NOT NULL DEFAULT '',
		auth_header_value VARCHAR(500) NOT NULL DEFAULT '',
		auth_query_name VARCHAR(255) NOT NULL DEFAULT '',
		auth_query_value VARCHAR(500) NOT NULL DEFAULT '',
		llm_key VARCHAR(500) NOT NULL DEFAULT '',
		spec_content TEXT,
		operations JSONB,
		enabled JSONB,
		tool_names JSONB,
		created_at TIMESTAMP(6) DEFAULT NOW(),
		updated_at TIMESTAMP(6) DEFAULT NOW()
	);

	-- Create indexes
	CREATE INDEX IF NOT EXISTS idx_api_profiles_project ON api_profiles(project);
	CREATE INDEX IF NOT EXISTS idx_api_profiles_port ON api_profiles(port);

	-- Create updated_at trigger
	CREATE OR REPLACE FUNCTION update_updated_at_column()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ language 'plpgsql';

	DROP TRIGGER IF EXISTS update_api_profiles_updated_at ON api_profiles;
	CREATE TRIGGER update_api_profiles_updated_at
		BEFORE UPDATE ON api_profiles
		FOR EACH ROW
		EXECUTE FUNCTION update_updated_at_column();
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create api_profiles table: %v", err)
	}

	log.Println("Successfully created api_profiles table with indexes and triggers")
	return nil
}

// DropAPIProfilesTable drops the api_profiles table (useful for testing).
func DropAPIProfilesTable(db *sql.DB) error {
	query := `
	DROP TRIGGER IF EXISTS update_api_profiles_updated_at ON api_profiles;
	DROP FUNCTION IF EXISTS update_updated_at_column();
	DROP TABLE IF EXISTS api_profiles CASCADE;
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to drop api_profiles table: %v", err)
	}

	log.Println("Successfully dropped api_profiles table")
	return nil
}

// RunMigrations runs all database migrations.
func RunMigrations(db *sql.DB) error {
	log.Println("Running database migrations...")

	if err := CreateAPIProfilesTable(db); err != nil {
		return fmt.Errorf("migration failed: %v", err)
	}

	log.Println("All migrations completed successfully")
	return nil
}
