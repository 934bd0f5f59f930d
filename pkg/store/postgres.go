package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/toolbridge/toolbridge/pkg/errs"
	"github.com/toolbridge/toolbridge/pkg/loader"
	"github.com/toolbridge/toolbridge/pkg/models"
)

// Connect opens a PostgreSQL connection from a connection URL and verifies it
// with a ping.
func Connect(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		return nil, fmt.Errorf("database URL must be a PostgreSQL connection string")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	log.Printf("Database connected: %s@[HIDDEN]", strings.Split(databaseURL, "@")[0])
	return db, nil
}

// PostgresStore implements ProfileStore on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `name, project, spec_url, port,
		auth_header_name, auth_header_value, auth_query_name, auth_query_value,
		llm_key, spec_content, operations, enabled, tool_names, created_at, updated_at`

// Get retrieves one profile by name.
func (s *PostgresStore) Get(name string) (*models.APIProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM api_profiles WHERE name = $1`
	profile, err := scanProfile(s.db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.TypeStore, "profile not found", name)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeStore, "failed to get profile")
	}
	return profile, nil
}

// Put inserts or replaces a profile record.
func (s *PostgresStore) Put(profile *models.APIProfile) error {
	if err := profile.Validate(); err != nil {
		return errs.Wrap(err, errs.TypeStore, "invalid profile")
	}

	specContent, operations, enabled, toolNames, err := encodeProfile(profile)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_profiles (name, project, spec_url, port,
			auth_header_name, auth_header_value, auth_query_name, auth_query_value,
			llm_key, spec_content, operations, enabled, tool_names)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (name) DO UPDATE SET
			project = EXCLUDED.project,
			spec_url = EXCLUDED.spec_url,
			port = EXCLUDED.port,
			auth_header_name = EXCLUDED.auth_header_name,
			auth_header_value = EXCLUDED.auth_header_value,
			auth_query_name = EXCLUDED.auth_query_name,
			auth_query_value = EXCLUDED.auth_query_value,
			llm_key = EXCLUDED.llm_key,
			spec_content = EXCLUDED.spec_content,
			operations = EXCLUDED.operations,
			enabled = EXCLUDED.enabled,
			tool_names = EXCLUDED.tool_names,
			updated_at = NOW()
	`
	_, err = s.db.Exec(query,
		profile.Name,
		profile.Project,
		profile.SpecURL,
		profile.Port,
		profile.AuthHeaderName,
		profile.AuthHeaderValue,
		profile.AuthQueryName,
		profile.AuthQueryValue,
		profile.LLMKey,
		specContent,
		operations,
		enabled,
		toolNames,
	)
	if err != nil {
		return errs.Wrap(err, errs.TypeStore, "failed to save profile")
	}
	return nil
}

// List retrieves all profiles ordered by name.
func (s *PostgresStore) List() ([]*models.APIProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM api_profiles ORDER BY name`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeStore, "failed to list profiles")
	}
	defer rows.Close()

	var profiles []*models.APIProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, errs.Wrap(err, errs.TypeStore, "failed to scan profile")
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// Delete removes a profile by name.
func (s *PostgresStore) Delete(name string) error {
	result, err := s.db.Exec(`DELETE FROM api_profiles WHERE name = $1`, name)
	if err != nil {
		return errs.Wrap(err, errs.TypeStore, "failed to delete profile")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errs.Wrap(err, errs.TypeStore, "failed to get rows affected")
	}
	if affected == 0 {
		return errs.New(errs.TypeStore, "profile not found", name)
	}
	return nil
}

// encodeProfile serializes the spec tree and catalog maps for storage.
func encodeProfile(p *models.APIProfile) (spec, operations, enabled, toolNames []byte, err error) {
	if p.Spec != nil {
		spec, err = p.Spec.MarshalJSON()
		if err != nil {
			return nil, nil, nil, nil, errs.Wrap(err, errs.TypeStore, "failed to encode spec")
		}
	}
	if operations, err = json.Marshal(p.Operations); err != nil {
		return nil, nil, nil, nil, errs.Wrap(err, errs.TypeStore, "failed to encode operations")
	}
	if enabled, err = json.Marshal(p.Enabled); err != nil {
		return nil, nil, nil, nil, errs.Wrap(err, errs.TypeStore, "failed to encode enabled map")
	}
	if toolNames, err = json.Marshal(p.ToolNames); err != nil {
		return nil, nil, nil, nil, errs.Wrap(err, errs.TypeStore, "failed to encode tool names")
	}
	return spec, operations, enabled, toolNames, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanProfile rebuilds a profile from one row, re-parsing the stored spec
// content so the in-memory tree is ready for projection.
func scanProfile(row rowScanner) (*models.APIProfile, error) {
	p := &models.APIProfile{}
	var specContent, operations, enabled, toolNames []byte

	err := row.Scan(
		&p.Name,
		&p.Project,
		&p.SpecURL,
		&p.Port,
		&p.AuthHeaderName,
		&p.AuthHeaderValue,
		&p.AuthQueryName,
		&p.AuthQueryValue,
		&p.LLMKey,
		&specContent,
		&operations,
		&enabled,
		&toolNames,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(specContent) > 0 {
		doc, err := loader.LoadFromData(specContent)
		if err != nil {
			return nil, fmt.Errorf("stored spec for %s is unreadable: %v", p.Name, err)
		}
		p.Spec = doc
	}
	if len(operations) > 0 {
		if err := json.Unmarshal(operations, &p.Operations); err != nil {
			return nil, fmt.Errorf("stored operations for %s are unreadable: %v", p.Name, err)
		}
	}
	if len(enabled) > 0 {
		if err := json.Unmarshal(enabled, &p.Enabled); err != nil {
			return nil, fmt.Errorf("stored enabled map for %s is unreadable: %v", p.Name, err)
		}
	}
	if len(toolNames) > 0 {
		if err := json.Unmarshal(toolNames, &p.ToolNames); err != nil {
			return nil, fmt.Errorf("stored tool names for %s are unreadable: %v", p.Name, err)
		}
	}
	return p, nil
}
