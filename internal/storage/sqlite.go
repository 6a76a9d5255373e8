package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"progenitor/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SQLiteStore) CreatePopulation(ctx context.Context, population model.Population, founders []model.Individual) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	config, err := EncodeConfig(population.Config)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO populations (id, name, domain, generation, best_fitness, avg_fitness, config, schema_version, codec_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		population.ID, population.Name, string(population.Domain), population.Generation,
		population.BestFitness, population.AvgFitness, config,
		population.SchemaVersion, population.CodecVersion,
		formatTime(population.CreatedAt), formatTime(population.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if err := insertIndividuals(ctx, tx, founders); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetPopulation(ctx context.Context, id string) (model.Population, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Population{}, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, name, domain, generation, best_fitness, avg_fitness, config, schema_version, codec_version, created_at, updated_at
		FROM populations WHERE id = ?
	`, id)
	population, err := scanPopulation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Population{}, false, nil
		}
		return model.Population{}, false, err
	}
	return population, true, nil
}

func (s *SQLiteStore) ListPopulations(ctx context.Context) ([]model.PopulationSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT p.id, p.name, p.domain, p.generation, p.best_fitness, p.avg_fitness, p.config, p.schema_version, p.codec_version, p.created_at, p.updated_at,
		       COUNT(i.id)
		FROM populations p
		LEFT JOIN individuals i ON i.population_id = p.id
		GROUP BY p.id
		ORDER BY p.created_at, p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.PopulationSummary, 0)
	for rows.Next() {
		var (
			p         model.Population
			domain    string
			config    []byte
			createdAt string
			updatedAt string
			size      int
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &domain, &p.Generation, &p.BestFitness, &p.AvgFitness,
			&config, &p.SchemaVersion, &p.CodecVersion, &createdAt, &updatedAt, &size,
		); err != nil {
			return nil, err
		}
		p.Domain = model.Domain(domain)
		if p.Config, err = DecodeConfig(config); err != nil {
			return nil, fmt.Errorf("decode config for population %s: %w", p.ID, err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, model.PopulationSummary{Population: p, Size: size})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetIndividuals(ctx context.Context, populationID string) ([]model.Individual, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT payload FROM individuals
		WHERE population_id = ?
		ORDER BY fitness DESC, id
	`, populationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Individual, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		individual, err := DecodeIndividual(payload)
		if err != nil {
			return nil, fmt.Errorf("decode individual for population %s: %w", populationID, err)
		}
		out = append(out, individual)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetBestIndividual(ctx context.Context, populationID string) (model.Individual, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Individual{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `
		SELECT payload FROM individuals
		WHERE population_id = ?
		ORDER BY fitness DESC, id
		LIMIT 1
	`, populationID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Individual{}, false, nil
		}
		return model.Individual{}, false, err
	}

	individual, err := DecodeIndividual(payload)
	if err != nil {
		return model.Individual{}, false, fmt.Errorf("decode best individual for population %s: %w", populationID, err)
	}
	return individual, true, nil
}

func (s *SQLiteStore) ReplaceGeneration(ctx context.Context, populationID string, prevGeneration int, offspring []model.Individual, record model.GenerationRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// The WHERE clause on the previous generation number is the
	// compare-and-swap that serializes racing evolve calls across processes.
	result, err := tx.ExecContext(ctx, `
		UPDATE populations
		SET generation = ?, best_fitness = ?, avg_fitness = ?, updated_at = ?
		WHERE id = ? AND generation = ?
	`, record.Generation, record.BestFitness, record.AvgFitness, formatTime(record.RecordedAt), populationID, prevGeneration)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM populations WHERE id = ?`, populationID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM individuals WHERE population_id = ?`, populationID); err != nil {
		return err
	}
	if err := insertIndividuals(ctx, tx, offspring); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO generation_records (population_id, generation, best_fitness, avg_fitness, min_fitness, diversity, best_individual_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.PopulationID, record.Generation, record.BestFitness, record.AvgFitness,
		record.MinFitness, record.Diversity, record.BestIndividualID, formatTime(record.RecordedAt),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetHistory(ctx context.Context, populationID string, limit int) ([]model.GenerationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := db.QueryContext(ctx, `
		SELECT population_id, generation, best_fitness, avg_fitness, min_fitness, diversity, best_individual_id, recorded_at
		FROM generation_records
		WHERE population_id = ?
		ORDER BY generation
		LIMIT ?
	`, populationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.GenerationRecord, 0)
	for rows.Next() {
		var (
			record     model.GenerationRecord
			recordedAt string
		)
		if err := rows.Scan(
			&record.PopulationID, &record.Generation, &record.BestFitness, &record.AvgFitness,
			&record.MinFitness, &record.Diversity, &record.BestIndividualID, &recordedAt,
		); err != nil {
			return nil, err
		}
		if record.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeletePopulation(ctx context.Context, id string) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM individuals WHERE population_id = ?`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM generation_records WHERE population_id = ?`, id); err != nil {
		return false, err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM populations WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (model.StoreStats, error) {
	db, err := s.getDB()
	if err != nil {
		return model.StoreStats{}, err
	}

	var stats model.StoreStats
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM populations`).Scan(&stats.Populations); err != nil {
		return model.StoreStats{}, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM individuals`).Scan(&stats.Individuals); err != nil {
		return model.StoreStats{}, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generation_records`).Scan(&stats.GenerationRecords); err != nil {
		return model.StoreStats{}, err
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func insertIndividuals(ctx context.Context, tx *sql.Tx, individuals []model.Individual) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO individuals (id, population_id, generation, fitness, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, individual := range individuals {
		payload, err := EncodeIndividual(individual)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			individual.ID, individual.PopulationID, individual.Generation,
			individual.Fitness, payload, formatTime(individual.CreatedAt),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanPopulation(row *sql.Row) (model.Population, error) {
	var (
		p         model.Population
		domain    string
		config    []byte
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&p.ID, &p.Name, &domain, &p.Generation, &p.BestFitness, &p.AvgFitness,
		&config, &p.SchemaVersion, &p.CodecVersion, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Population{}, err
	}
	p.Domain = model.Domain(domain)
	if p.Config, err = DecodeConfig(config); err != nil {
		return model.Population{}, fmt.Errorf("decode config for population %s: %w", p.ID, err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Population{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Population{}, err
	}
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS populations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			domain TEXT NOT NULL,
			generation INTEGER NOT NULL,
			best_fitness REAL NOT NULL,
			avg_fitness REAL NOT NULL,
			config BLOB,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS individuals (
			id TEXT PRIMARY KEY,
			population_id TEXT NOT NULL REFERENCES populations(id) ON DELETE CASCADE,
			generation INTEGER NOT NULL,
			fitness REAL NOT NULL,
			payload BLOB NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_individuals_population_fitness
			ON individuals (population_id, fitness DESC);
		CREATE TABLE IF NOT EXISTS generation_records (
			population_id TEXT NOT NULL REFERENCES populations(id) ON DELETE CASCADE,
			generation INTEGER NOT NULL,
			best_fitness REAL NOT NULL,
			avg_fitness REAL NOT NULL,
			min_fitness REAL NOT NULL,
			diversity REAL NOT NULL,
			best_individual_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (population_id, generation)
		);
	`)
	return err
}
