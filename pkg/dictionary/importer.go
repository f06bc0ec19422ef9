package dictionary

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/db"
)

// Importer fills in definitions for vocabulary rows that were stored without them.
type Importer struct {
	conn *sql.DB
	dict *Dictionary
	log  *zap.Logger
}

// NewImporter creates an importer over an indexed dictionary. A nil logger
// disables logging.
func NewImporter(conn *sql.DB, dict *Dictionary, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{conn: conn, dict: dict, log: log}
}

// ProcessUpdates looks up every vocabulary word without definitions and
// stores what the dictionary knows. It returns the number of rows updated.
func (im *Importer) ProcessUpdates(ctx context.Context) (int, error) {
	words, err := db.VocabularyWithoutDefinitions(ctx, im.conn)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		matches := im.dict.Lookup(w.Word, w.Word, w.Reading)
		if len(matches) == 0 {
			continue
		}
		defs, err := FormatDefinitions(matches)
		if err != nil {
			im.log.Warn("format definitions", zap.String("word", w.Word), zap.Error(err))
			continue
		}
		if err := db.UpdateVocabularyDefinitions(ctx, im.conn, w.ID, defs); err != nil {
			im.log.Warn("update definitions", zap.Int64("vocabulary_id", w.ID), zap.Error(err))
			continue
		}
		updated++
	}
	return updated, nil
}
