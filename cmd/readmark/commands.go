package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/api"
	"github.com/japaniel/readmark/pkg/config"
	"github.com/japaniel/readmark/pkg/db"
	"github.com/japaniel/readmark/pkg/dictionary"
	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/ingest"
	"github.com/japaniel/readmark/pkg/library"
	"github.com/japaniel/readmark/pkg/oracle"
)

const usage = `usage: readmark <command> [flags] [args]

commands:
  import [-no-dict] [-level L] URL...
                                    fetch and store articles
  import-json FILE...               store exported articles with vocabulary and grammar
  definitions                       fill missing vocabulary definitions from JMdict
  list [-level L] [-topic T]        list stored documents
  serve                             run the HTTP API
  show DOC                          print a document with its highlights
  highlight [-color C] DOC TEXT     highlight the first free occurrence of TEXT
  highlight -start N -end M DOC     highlight a rune range
  remove DOC ID                     delete a highlight
  explain DOC                       explain pending highlights
  save DOC ID / unsave DOC ID       add or drop a saved word
  saved [-group G]                  list saved words
  group list|create|rename|delete|assign|practice ...
  suggest [-apply] [-color C] DOC [WORD...]
  speak TEXT                        synthesize speech to stdout
`

type command func(ctx context.Context, a *app, args []string, out io.Writer) error

var commands = map[string]command{
	"import":      cmdImport,
	"import-json": cmdImportJSON,
	"definitions": cmdDefinitions,
	"list":        cmdList,
	"serve":       cmdServe,
	"show":        cmdShow,
	"highlight":   cmdHighlight,
	"remove":      cmdRemove,
	"explain":     cmdExplain,
	"save":        cmdSave,
	"unsave":      cmdUnsave,
	"saved":       cmdSaved,
	"group":       cmdGroup,
	"suggest":     cmdSuggest,
	"speak":       cmdSpeak,
}

// run dispatches one subcommand.
func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer, log *zap.Logger) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(out, usage)
		return flag.ErrHelp
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return cmd(ctx, a, args[1:], out)
}

func newFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func needArgs(fs *flag.FlagSet, n int, names string) error {
	if fs.NArg() < n {
		return fmt.Errorf("%s: expected %s", fs.Name(), names)
	}
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("import", out)
	noDict := fs.Bool("no-dict", false, "skip dictionary definitions for Japanese articles")
	level := fs.String("level", "", "CEFR level of the articles (A1..C2)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, "URL..."); err != nil {
		return err
	}
	lvl, err := db.NormalizeLevel(*level)
	if err != nil {
		return err
	}
	ig, err := a.ingester(ctx, !*noDict)
	if err != nil {
		return err
	}
	ig.Level = lvl
	start := time.Now()
	results, err := ig.ImportURLs(ctx, fs.Args())
	if err != nil {
		return err
	}
	printResults(out, results)
	a.log.Info("import complete", zap.Int("documents", len(results)), zap.Duration("took", time.Since(start)))
	return nil
}

func printResults(out io.Writer, results []ingest.Result) {
	for _, r := range results {
		status := "imported"
		if r.Existing {
			status = "exists"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%d words", status, r.DocumentID, r.Title, r.Words)
		if r.Grammar > 0 {
			fmt.Fprintf(out, "\t%d patterns", r.Grammar)
		}
		fmt.Fprintln(out)
	}
}

// cmdImportJSON stores articles exported with their vocabulary and grammar
// patterns. Each file holds one article object or an array of them.
func cmdImportJSON(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("import-json", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, "FILE..."); err != nil {
		return err
	}
	ig, err := a.ingester(ctx, false)
	if err != nil {
		return err
	}
	var results []ingest.Result
	for _, name := range fs.Args() {
		details, err := readDetails(name)
		if err != nil {
			return err
		}
		for _, d := range details {
			r, err := ig.ImportDetail(ctx, d)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results = append(results, r)
		}
	}
	printResults(out, results)
	return nil
}

func readDetails(name string) ([]ingest.Detail, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	details, err := ingest.ReadDetails(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return details, nil
}

func cmdDefinitions(ctx context.Context, a *app, args []string, out io.Writer) error {
	dict, err := a.dictionary(ctx)
	if err != nil {
		return err
	}
	count, err := dictionary.NewImporter(a.conn, dict, a.log).ProcessUpdates(ctx)
	if err != nil {
		return fmt.Errorf("failed to update definitions: %w", err)
	}
	fmt.Fprintf(out, "Updated definitions for %d words.\n", count)
	return nil
}

func cmdList(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("list", out)
	level := fs.String("level", "", "only documents at this CEFR level")
	topic := fs.String("topic", "", "only documents with this topic")
	if err := fs.Parse(args); err != nil {
		return err
	}
	docs, err := a.lib.Documents(ctx, db.ListFilter{Level: *level, Topic: *topic})
	if err != nil {
		return err
	}
	for _, d := range docs {
		lvl := d.Level
		if lvl == "" {
			lvl = "-"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Language, lvl, d.Title, d.URL)
	}
	return nil
}

func cmdServe(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("serve", out)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	srv := &http.Server{
		Addr: *addr,
		Handler: api.NewRouter(api.RouterConfig{
			Library:        a.lib,
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			Log:            a.log.Named("api"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", *addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.log.Info("server stopped")
	return nil
}

func open(ctx context.Context, a *app, fs *flag.FlagSet) (*library.Session, error) {
	if err := needArgs(fs, 1, "DOC"); err != nil {
		return nil, err
	}
	return a.lib.Open(ctx, fs.Arg(0))
}

func cmdShow(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("show", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := open(ctx, a, fs)
	if err != nil {
		return err
	}
	doc := s.Document()
	fmt.Fprintf(out, "%s\n", doc.Title)
	if doc.Level != "" {
		fmt.Fprintf(out, "level %s\n", doc.Level)
	}
	fmt.Fprintln(out)
	for _, seg := range s.Segments() {
		if seg.Kind == highlight.SegmentHighlight {
			fmt.Fprintf(out, "[%s]", seg.Text)
			continue
		}
		fmt.Fprint(out, seg.Text)
	}
	fmt.Fprintln(out)
	if hs := s.Highlights(); len(hs) > 0 {
		fmt.Fprintln(out)
		for _, h := range hs {
			printHighlight(out, h, s.IsSaved(h.ID))
		}
	}
	return printStudyNotes(ctx, a, doc.ID, out)
}

// printStudyNotes lists the German vocabulary and grammar patterns stored
// with a document. Words without an English gloss are skipped.
func printStudyNotes(ctx context.Context, a *app, docID string, out io.Writer) error {
	words, err := a.lib.Vocabulary(ctx, docID)
	if err != nil {
		return err
	}
	header := false
	for _, w := range words {
		if w.English == "" {
			continue
		}
		if !header {
			fmt.Fprintln(out, "\nvocabulary:")
			header = true
		}
		word := w.Word
		if w.Article != "" {
			word = w.Article + " " + word
		}
		if w.Plural != "" {
			word += " (pl. " + w.Plural + ")"
		}
		fmt.Fprintf(out, "  %s\t%s\n", word, w.English)
	}
	patterns, err := a.lib.GrammarPatterns(ctx, docID)
	if err != nil {
		return err
	}
	if len(patterns) > 0 {
		fmt.Fprintln(out, "\ngrammar:")
	}
	for _, p := range patterns {
		fmt.Fprintf(out, "  %s", p.Pattern)
		if p.Example != "" {
			fmt.Fprintf(out, "\t%s", p.Example)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func printHighlight(out io.Writer, h highlight.Highlight, saved bool) {
	mark := " "
	if saved {
		mark = "*"
	}
	fmt.Fprintf(out, "%s %s\t[%d,%d)\t%s", mark, h.ID, h.Start, h.End, h.Text)
	if h.GroupID != "" {
		fmt.Fprintf(out, "\tgroup=%s", h.GroupID)
	}
	if h.Explanation != nil {
		fmt.Fprintf(out, "\t%s", h.Explanation.Meaning)
	}
	fmt.Fprintln(out)
}

// runeIndex returns the rune offset of the first occurrence of sub at or after rune offset from.
func runeIndex(s, sub string, from int) int {
	byteFrom := 0
	for i := 0; i < from && byteFrom < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[byteFrom:])
		byteFrom += size
	}
	i := strings.Index(s[byteFrom:], sub)
	if i < 0 {
		return -1
	}
	return from + utf8.RuneCountInString(s[byteFrom:byteFrom+i])
}

func cmdHighlight(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("highlight", out)
	color := fs.String("color", "yellow", "highlight color")
	start := fs.Int("start", -1, "start rune offset")
	end := fs.Int("end", -1, "end rune offset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := open(ctx, a, fs)
	if err != nil {
		return err
	}

	if *start >= 0 && *end >= 0 {
		h, err := s.Add(ctx, highlight.Candidate{Color: *color, Start: *start, End: *end})
		if err != nil {
			return err
		}
		printHighlight(out, h, false)
		return nil
	}
	if err := needArgs(fs, 2, "DOC TEXT"); err != nil {
		return err
	}
	text := strings.Join(fs.Args()[1:], " ")
	content := s.Document().Content
	n := utf8.RuneCountInString(text)
	for from := 0; ; {
		i := runeIndex(content, text, from)
		if i < 0 {
			return fmt.Errorf("%q not found outside existing highlights", text)
		}
		h, err := s.Add(ctx, highlight.Candidate{Text: text, Color: *color, Start: i, End: i + n})
		if errors.Is(err, highlight.ErrOverlap) {
			from = i + 1
			continue
		}
		if err != nil {
			return err
		}
		printHighlight(out, h, false)
		return nil
	}
}

func cmdRemove(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("remove", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 2, "DOC ID"); err != nil {
		return err
	}
	s, err := open(ctx, a, fs)
	if err != nil {
		return err
	}
	return s.Remove(ctx, fs.Arg(1))
}

func cmdExplain(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("explain", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := open(ctx, a, fs)
	if err != nil {
		return err
	}
	report, err := s.Explain(ctx)
	if err != nil {
		if oracle.Retryable(err) {
			return fmt.Errorf("%w (temporary, try again)", err)
		}
		return err
	}
	fmt.Fprintf(out, "pending=%d matched=%d unmatched=%d\n", report.Pending, report.Matched, len(report.Unmatched))
	for _, h := range s.Highlights() {
		if h.Explanation == nil {
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n\t%s\n\t%s\n", h.Text, h.Explanation.Meaning, h.Explanation.Grammar, h.Explanation.Example)
	}
	return nil
}

func cmdSave(ctx context.Context, a *app, args []string, out io.Writer) error {
	return saveCmd(ctx, a, "save", args, out, (*library.Session).Save)
}

func cmdUnsave(ctx context.Context, a *app, args []string, out io.Writer) error {
	return saveCmd(ctx, a, "unsave", args, out, (*library.Session).Unsave)
}

func saveCmd(ctx context.Context, a *app, name string, args []string, out io.Writer, fn func(*library.Session, context.Context, string) error) error {
	fs := newFlags(name, out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 2, "DOC ID"); err != nil {
		return err
	}
	s, err := open(ctx, a, fs)
	if err != nil {
		return err
	}
	return fn(s, ctx, fs.Arg(1))
}

func cmdSaved(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("saved", out)
	group := fs.String("group", "", "only words in this group")
	if err := fs.Parse(args); err != nil {
		return err
	}
	words, err := a.lib.SavedWords(ctx, library.SavedFilter{GroupID: *group})
	if err != nil {
		return err
	}
	for _, w := range words {
		meaning := ""
		if w.Explanation != nil {
			meaning = w.Explanation.Meaning
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", w.DocumentID, w.ID, w.Text, meaning)
	}
	return nil
}

func cmdGroup(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("group: expected list|create|rename|delete|assign|practice")
	}
	sub, args := args[0], args[1:]
	fs := newFlags("group "+sub, out)
	only := fs.Bool("only", false, "assign: hide the word from the ungrouped list")
	regenerate := fs.Bool("regenerate", false, "practice: ignore the cached text")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		groups, err := a.lib.Groups(ctx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Fprintf(out, "%s\t%s\n", g.ID, g.Name)
		}
		return nil
	case "create":
		if err := needArgs(fs, 1, "NAME"); err != nil {
			return err
		}
		g, err := a.lib.CreateGroup(ctx, strings.Join(fs.Args(), " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", g.ID, g.Name)
		return nil
	case "rename":
		if err := needArgs(fs, 2, "ID NAME"); err != nil {
			return err
		}
		_, err := a.lib.RenameGroup(ctx, fs.Arg(0), strings.Join(fs.Args()[1:], " "))
		return err
	case "delete":
		if err := needArgs(fs, 1, "ID"); err != nil {
			return err
		}
		return a.lib.DeleteGroup(ctx, fs.Arg(0))
	case "assign":
		if err := needArgs(fs, 3, "DOC HIGHLIGHT GROUP"); err != nil {
			return err
		}
		_, err := a.lib.AssignToGroup(ctx, fs.Arg(0), fs.Arg(1), fs.Arg(2), *only)
		return err
	case "practice":
		if err := needArgs(fs, 1, "ID"); err != nil {
			return err
		}
		text, err := a.lib.GeneratePracticeText(ctx, fs.Arg(0), *regenerate)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		return nil
	}
	return fmt.Errorf("group: unknown subcommand %q", sub)
}

func cmdSuggest(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlags("suggest", out)
	apply := fs.Bool("apply", false, "highlight every match")
	color := fs.String("color", "lightblue", "color for applied matches")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := open(ctx, a, fs)
	if err != nil {
		return err
	}
	got, err := s.Suggest(ctx, fs.Args()[1:], *color, *apply)
	if err != nil {
		return err
	}
	for _, m := range got {
		status := ""
		switch {
		case m.Skipped:
			status = "\toverlaps"
		case m.HighlightID != "":
			status = "\t" + m.HighlightID
		}
		fmt.Fprintf(out, "[%d,%d)\t%s%s\n", m.Start, m.End, m.Text, status)
	}
	return nil
}

func cmdSpeak(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("speak: expected TEXT")
	}
	audio, err := a.lib.Synthesize(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	_, err = out.Write(audio)
	return err
}
