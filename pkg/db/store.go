package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDocumentNotFound is returned when no document has the requested id.
var ErrDocumentNotFound = errors.New("document not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// nullableString returns nil for "" else the value.
func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// CreateOrGetDocument stores doc unless a document with the same URL exists,
// and returns the id of the stored row. Documents without a URL are always inserted.
func CreateOrGetDocument(ctx context.Context, db DBExecutor, doc Document) (string, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return "", fmt.Errorf("document id must be non-empty")
	}
	if doc.Content == "" {
		return "", fmt.Errorf("document content must be non-empty")
	}
	if doc.AddedAt.IsZero() {
		doc.AddedAt = time.Now().UTC()
	}
	level, err := NormalizeLevel(doc.Level)
	if err != nil {
		return "", err
	}
	doc.Level = level

	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		if doc.URL != "" {
			var id string
			err := db.QueryRowContext(ctx, `SELECT id FROM documents WHERE url = ?`, doc.URL).Scan(&id)
			if err == nil {
				return id, nil
			}
			if err != sql.ErrNoRows {
				return "", err
			}
		}

		_, err := db.ExecContext(ctx,
			`INSERT INTO documents (id, title, author, site, url, language, level, topic, excerpt, content, added_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.Title, nullableString(doc.Author), nullableString(doc.Site), nullableString(doc.URL),
			doc.Language, nullableString(doc.Level), nullableString(doc.Topic), nullableString(doc.Excerpt),
			doc.Content, doc.AddedAt,
		)
		if err != nil {
			// Another writer stored the same URL first; select it on the next pass.
			if isUniqueConstraintErr(err) && doc.URL != "" {
				continue
			}
			return "", fmt.Errorf("insert document: %w", err)
		}
		return doc.ID, nil
	}

	return "", fmt.Errorf("could not create or get document after %d retries", maxRetries)
}

const documentColumns = `id, title, author, site, url, language, level, topic, excerpt, content, added_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	var author, site, url, level, topic, excerpt sql.NullString
	if err := row.Scan(&d.ID, &d.Title, &author, &site, &url, &d.Language, &level, &topic, &excerpt, &d.Content, &d.AddedAt); err != nil {
		return Document{}, err
	}
	d.Author = author.String
	d.Site = site.String
	d.URL = url.String
	d.Level = level.String
	d.Topic = topic.String
	d.Excerpt = excerpt.String
	return d, nil
}

// GetDocument returns the document with id.
func GetDocument(ctx context.Context, db DBExecutor, id string) (Document, error) {
	row := db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// ListDocuments returns the documents matching f, newest first. Content is omitted.
func ListDocuments(ctx context.Context, db DBExecutor, f ListFilter) ([]Document, error) {
	level, err := NormalizeLevel(f.Level)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1 = 1`
	var args []interface{}
	if level != "" {
		query += ` AND level = ?`
		args = append(args, level)
	}
	if topic := strings.TrimSpace(f.Topic); topic != "" {
		query += ` AND (',' || REPLACE(IFNULL(topic, ''), ', ', ',') || ',') LIKE ?`
		args = append(args, "%,"+topic+",%")
	}
	rows, err := db.QueryContext(ctx, query+` ORDER BY added_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		d.Content = ""
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertVocabulary records count occurrences of word in a document.
func UpsertVocabulary(ctx context.Context, db DBExecutor, v VocabularyEntry) (int64, error) {
	word := strings.TrimSpace(v.Word)
	if word == "" {
		return 0, fmt.Errorf("word must be non-empty")
	}
	if v.OccurrenceCount < 1 {
		return 0, fmt.Errorf("occurrence count must be positive, got %d", v.OccurrenceCount)
	}

	var id int64
	err := db.QueryRowContext(ctx, `INSERT INTO vocabulary (document_id, word, reading, part_of_speech, definitions, article, english, plural, occurrence_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(document_id, word) DO UPDATE SET
	  occurrence_count = vocabulary.occurrence_count + excluded.occurrence_count,
	  reading = COALESCE(NULLIF(excluded.reading, ''), vocabulary.reading),
	  definitions = COALESCE(NULLIF(excluded.definitions, ''), vocabulary.definitions),
	  article = COALESCE(NULLIF(excluded.article, ''), vocabulary.article),
	  english = COALESCE(NULLIF(excluded.english, ''), vocabulary.english),
	  plural = COALESCE(NULLIF(excluded.plural, ''), vocabulary.plural)
	RETURNING id`,
		v.DocumentID, word, nullableString(v.Reading), nullableString(v.PartOfSpeech), nullableString(v.Definitions),
		nullableString(v.Article), nullableString(v.English), nullableString(v.Plural), v.OccurrenceCount,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert vocabulary: %w", err)
	}
	return id, nil
}

// GetVocabulary returns the words recorded for a document, most frequent first.
func GetVocabulary(ctx context.Context, db DBExecutor, documentID string) ([]VocabularyEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, document_id, word, reading, part_of_speech, definitions, article, english, plural, occurrence_count
		FROM vocabulary WHERE document_id = ? ORDER BY occurrence_count DESC, word`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VocabularyEntry
	for rows.Next() {
		var v VocabularyEntry
		var reading, pos, defs, article, english, plural sql.NullString
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Word, &reading, &pos, &defs, &article, &english, &plural, &v.OccurrenceCount); err != nil {
			return nil, err
		}
		v.Reading = reading.String
		v.PartOfSpeech = pos.String
		v.Definitions = defs.String
		v.Article = article.String
		v.English = english.String
		v.Plural = plural.String
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceGrammarPatterns stores patterns as the grammar patterns of a
// document, replacing any stored before. Blank patterns are skipped. It
// returns the number of patterns stored.
func ReplaceGrammarPatterns(ctx context.Context, db DBExecutor, documentID string, patterns []GrammarPattern) (int, error) {
	if _, err := db.ExecContext(ctx, `DELETE FROM grammar_patterns WHERE document_id = ?`, documentID); err != nil {
		return 0, fmt.Errorf("clear grammar patterns: %w", err)
	}
	pos := 0
	for _, p := range patterns {
		pattern := strings.TrimSpace(p.Pattern)
		if pattern == "" {
			continue
		}
		_, err := db.ExecContext(ctx,
			`INSERT INTO grammar_patterns (document_id, position, pattern, example, explanation) VALUES (?, ?, ?, ?, ?)`,
			documentID, pos, pattern, nullableString(p.Example), nullableString(p.Explanation))
		if err != nil {
			return pos, fmt.Errorf("insert grammar pattern %q: %w", pattern, err)
		}
		pos++
	}
	return pos, nil
}

// GetGrammarPatterns returns the grammar patterns of a document in import order.
func GetGrammarPatterns(ctx context.Context, db DBExecutor, documentID string) ([]GrammarPattern, error) {
	rows, err := db.QueryContext(ctx, `SELECT pattern, example, explanation
		FROM grammar_patterns WHERE document_id = ? ORDER BY position`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GrammarPattern
	for rows.Next() {
		var p GrammarPattern
		var example, explanation sql.NullString
		if err := rows.Scan(&p.Pattern, &example, &explanation); err != nil {
			return nil, err
		}
		p.Example = example.String
		p.Explanation = explanation.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// Documents is the read side of the content store.
type Documents struct {
	DB *sql.DB
}

// GetDocument returns the document with id.
func (d Documents) GetDocument(ctx context.Context, id string) (Document, error) {
	return GetDocument(ctx, d.DB, id)
}

// ListDocuments returns metadata of the documents matching f, newest first.
func (d Documents) ListDocuments(ctx context.Context, f ListFilter) ([]Document, error) {
	return ListDocuments(ctx, d.DB, f)
}

// Vocabulary returns the words extracted from a document.
func (d Documents) Vocabulary(ctx context.Context, id string) ([]VocabularyEntry, error) {
	return GetVocabulary(ctx, d.DB, id)
}

// GrammarPatterns returns the grammar patterns of a document.
func (d Documents) GrammarPatterns(ctx context.Context, id string) ([]GrammarPattern, error) {
	return GetGrammarPatterns(ctx, d.DB, id)
}

// VocabularyWithoutDefinitions returns every vocabulary row that has no definitions yet.
func VocabularyWithoutDefinitions(ctx context.Context, db DBExecutor) ([]VocabularyEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, document_id, word, reading, occurrence_count
		FROM vocabulary WHERE definitions IS NULL OR definitions = '' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VocabularyEntry
	for rows.Next() {
		var v VocabularyEntry
		var reading sql.NullString
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Word, &reading, &v.OccurrenceCount); err != nil {
			return nil, err
		}
		v.Reading = reading.String
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateVocabularyDefinitions sets the definitions JSON of one vocabulary row.
func UpdateVocabularyDefinitions(ctx context.Context, db DBExecutor, id int64, definitions string) error {
	res, err := db.ExecContext(ctx, `UPDATE vocabulary SET definitions = ? WHERE id = ?`, nullableString(definitions), id)
	if err != nil {
		return fmt.Errorf("update definitions: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("vocabulary %d not found", id)
	}
	return nil
}
