package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/analyze"
	"github.com/japaniel/readmark/pkg/config"
	"github.com/japaniel/readmark/pkg/db"
	"github.com/japaniel/readmark/pkg/dictionary"
	"github.com/japaniel/readmark/pkg/ingest"
	"github.com/japaniel/readmark/pkg/kv"
	"github.com/japaniel/readmark/pkg/library"
	"github.com/japaniel/readmark/pkg/oracle"
	"github.com/japaniel/readmark/pkg/persist"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg  *config.Config
	log  *zap.Logger
	conn *sql.DB
	kv   kv.Store
	lib  *library.Library

	analyzer *analyze.Analyzer
	dict     *dictionary.Dictionary
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	conn, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{cfg: cfg, log: log, conn: conn}

	a.kv, err = openStore(ctx, cfg.Store, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	codec, err := kv.CodecByName(cfg.Store.Codec)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := library.Options{
		Docs:       db.Documents{DB: conn},
		Vocabulary: db.Documents{DB: conn},
		Grammar:    db.Documents{DB: conn},
		Store:      persist.New(a.kv, codec, log.Named("persist")),
		Log:        log.Named("library"),
	}
	if err := a.wireOracles(ctx, &opts); err != nil {
		a.Close()
		return nil, err
	}
	a.lib, err = library.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, conn *sql.DB) (kv.Store, error) {
	switch cfg.Backend {
	case "memory":
		return kv.NewMemory(), nil
	case "redis":
		r := kv.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return r, nil
	}
	return kv.NewSQLite(conn), nil
}

// wireOracles picks the explanation/generation provider and speech.
// Network providers without a key stay unset, so their features report
// oracle.ErrNotConfigured instead of failing at startup.
func (a *app) wireOracles(ctx context.Context, opts *library.Options) error {
	oc := a.cfg.Oracle
	switch oc.Provider {
	case "groq", "anthropic":
		if !a.cfg.HasOracleKey() {
			a.log.Info("oracle disabled: no api key", zap.String("provider", oc.Provider))
			break
		}
		var (
			p interface {
				oracle.Explainer
				oracle.Generator
			}
			err error
		)
		if oc.Provider == "groq" {
			p, err = oracle.NewGroq(oracle.GroqConfig{APIKey: oc.APIKey, BaseURL: oc.BaseURL, Model: oc.Model, Timeout: oc.Timeout}, a.log)
		} else {
			p, err = oracle.NewAnthropic(oracle.AnthropicConfig{APIKey: oc.APIKey, BaseURL: oc.BaseURL, Model: oc.Model}, a.log)
		}
		if err != nil {
			return err
		}
		opts.Explainer, opts.Generator = p, p
	case "jmdict":
		dict, err := a.dictionary(ctx)
		if err != nil {
			return err
		}
		analyzer, err := a.analyzerOnce()
		if err != nil {
			return err
		}
		opts.Explainer = dictionary.NewExplainer(dict, analyzer, a.log)
	}

	if a.cfg.Speech.APIKey != "" {
		sp := a.cfg.Speech
		tts, err := oracle.NewElevenLabs(oracle.ElevenLabsConfig{APIKey: sp.APIKey, VoiceID: sp.VoiceID, ModelID: sp.ModelID, Timeout: sp.Timeout}, nil, a.log)
		if err != nil {
			return err
		}
		opts.Speech = tts
	}
	return nil
}

// dictionary downloads the JMdict file when missing and loads it once.
func (a *app) dictionary(ctx context.Context) (*dictionary.Dictionary, error) {
	if a.dict != nil {
		return a.dict, nil
	}
	path := a.cfg.Oracle.DictionaryPath
	if err := dictionary.EnsureDictionary(ctx, path, a.log); err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", path, err)
	}
	entries, err := dictionary.LoadJMdictSimplified(path)
	if err != nil {
		return nil, err
	}
	a.dict = dictionary.New(entries)
	a.log.Info("dictionary loaded", zap.String("path", path), zap.Int("entries", a.dict.Len()))
	return a.dict, nil
}

func (a *app) analyzerOnce() (*analyze.Analyzer, error) {
	if a.analyzer != nil {
		return a.analyzer, nil
	}
	an, err := analyze.NewAnalyzer()
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}
	a.analyzer = an
	return an, nil
}

// ingester builds an Ingester. A dictionary failure only costs definitions.
func (a *app) ingester(ctx context.Context, useDict bool) (*ingest.Ingester, error) {
	analyzer, err := a.analyzerOnce()
	if err != nil {
		return nil, err
	}
	var dict *dictionary.Dictionary
	if useDict {
		dict, err = a.dictionary(ctx)
		if err != nil {
			a.log.Warn("continuing without definitions", zap.Error(err))
			dict = nil
		}
	}
	ig := ingest.NewIngester(a.conn, analyzer, dict, a.log.Named("ingest"))
	ig.Workers = a.cfg.Ingest.Workers
	ig.BatchSize = a.cfg.Ingest.BatchSize
	ig.Fetcher.Client.Timeout = a.cfg.Ingest.Timeout
	return ig, nil
}

func (a *app) Close() {
	if r, ok := a.kv.(*kv.Redis); ok {
		_ = r.Close()
	}
	if a.conn != nil {
		a.conn.Close()
	}
}
