package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/rxitect/rxitect/tokenizer"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
)

// ErrNotFound is returned when no vocabulary matches a lookup.
var ErrNotFound = errors.New("vocabulary not found")

// timeLayout is fixed width so that taken_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Vocabulary is a stored tokenizer vocabulary.
type Vocabulary struct {
	ID        uuid.UUID
	Source    string
	TakenAt   time.Time
	Tokens    []string
	MaxSeqLen int
}

// Tokenizer rebuilds the fitted tokenizer the vocabulary was taken from.
func (v *Vocabulary) Tokenizer(opts ...tokenizer.Option) (*tokenizer.SmilesTokenizer, error) {
	if v.MaxSeqLen > 0 {
		opts = append([]tokenizer.Option{tokenizer.WithMaxSeqLen(v.MaxSeqLen)}, opts...)
	}
	return tokenizer.FromVocabulary(v.Tokens, opts...)
}

// Store keeps vocabulary snapshots in a libsql database so a fitted
// vocabulary can be reused by later runs.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and creates the schema. A dsn without a scheme is a
// local database file whose directory is created if needed.
func Open(dsn string) (*Store, error) {
	url := dsn
	if !strings.Contains(dsn, ":") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
		url = "file:" + dsn
	}

	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary database: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Vocabulary store opened", "dsn", dsn)
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS vocabularies (
		id TEXT PRIMARY KEY UNIQUE,
		source TEXT,
		taken_at TEXT NOT NULL,
		max_seq_len INTEGER NOT NULL DEFAULT 0,
		tokens TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create vocabularies table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveVocabulary stores the vocabulary of a fitted tokenizer. source
// records where it was fitted, usually the data file path.
func (s *Store) SaveVocabulary(tok *tokenizer.SmilesTokenizer, source string) (uuid.UUID, error) {
	if !tok.Fitted() {
		return uuid.Nil, tokenizer.ErrNotFitted
	}
	tokens, err := json.Marshal(tok.Tokens())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode tokens: %w", err)
	}

	id := uuid.New()
	_, err = s.db.Exec(
		"INSERT INTO vocabularies (id, source, taken_at, max_seq_len, tokens) VALUES (?, ?, ?, ?, ?)",
		id.String(),
		source,
		time.Now().UTC().Format(timeLayout),
		tok.MaxSeqLen(),
		string(tokens),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert vocabulary: %w", err)
	}

	slog.Info("Vocabulary saved", "id", id, "source", source, "size", tok.VocabSize())
	return id, nil
}

// GetVocabulary returns the stored vocabulary with the given id.
func (s *Store) GetVocabulary(id uuid.UUID) (*Vocabulary, error) {
	row := s.db.QueryRow("SELECT id, source, taken_at, max_seq_len, tokens FROM vocabularies WHERE id = ?", id.String())
	v, err := scanVocabulary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v, err
}

// LoadVocabulary rebuilds the tokenizer stored under id.
func (s *Store) LoadVocabulary(id uuid.UUID, opts ...tokenizer.Option) (*tokenizer.SmilesTokenizer, error) {
	v, err := s.GetVocabulary(id)
	if err != nil {
		return nil, err
	}
	return v.Tokenizer(opts...)
}

// LatestVocabulary returns the most recently saved vocabulary.
func (s *Store) LatestVocabulary() (*Vocabulary, error) {
	row := s.db.QueryRow("SELECT id, source, taken_at, max_seq_len, tokens FROM vocabularies ORDER BY taken_at DESC, rowid DESC LIMIT 1")
	v, err := scanVocabulary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ListVocabularies returns every stored vocabulary, newest first.
func (s *Store) ListVocabularies() ([]Vocabulary, error) {
	rows, err := s.db.Query("SELECT id, source, taken_at, max_seq_len, tokens FROM vocabularies ORDER BY taken_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabularies: %w", err)
	}
	defer rows.Close()

	var vocabs []Vocabulary
	for rows.Next() {
		v, err := scanVocabulary(rows)
		if err != nil {
			return nil, err
		}
		vocabs = append(vocabs, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during vocabulary iteration: %w", err)
	}
	return vocabs, nil
}

// DeleteVocabulary removes the vocabulary with the given id.
func (s *Store) DeleteVocabulary(id uuid.UUID) error {
	res, err := s.db.Exec("DELETE FROM vocabularies WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete vocabulary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete vocabulary: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	slog.Debug("Vocabulary deleted", "id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVocabulary(row scanner) (*Vocabulary, error) {
	var (
		v       Vocabulary
		id      string
		source  sql.NullString
		takenAt string
		tokens  string
	)
	if err := row.Scan(&id, &source, &takenAt, &v.MaxSeqLen, &tokens); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan vocabulary: %w", err)
	}

	var err error
	v.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary ID: %w", err)
	}
	v.TakenAt, err = time.Parse(timeLayout, takenAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary timestamp: %w", err)
	}
	if err := json.Unmarshal([]byte(tokens), &v.Tokens); err != nil {
		return nil, fmt.Errorf("failed to decode vocabulary tokens: %w", err)
	}
	v.Source = source.String
	return &v, nil
}
