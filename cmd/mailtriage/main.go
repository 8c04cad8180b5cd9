// Command mailtriage runs the email triage workflow from the terminal: start
// a session for an inbound email, review suspended drafts interactively, and
// inspect or resume sessions across restarts.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/kataras/golog"

	"github.com/smallnest/mailtriage/graph"
	"github.com/smallnest/mailtriage/kb"
	"github.com/smallnest/mailtriage/llm"
	"github.com/smallnest/mailtriage/log"
	"github.com/smallnest/mailtriage/session"
	"github.com/smallnest/mailtriage/store"
	filestore "github.com/smallnest/mailtriage/store/file"
	"github.com/smallnest/mailtriage/store/memory"
	pgstore "github.com/smallnest/mailtriage/store/postgres"
	redisstore "github.com/smallnest/mailtriage/store/redis"
	sqlitestore "github.com/smallnest/mailtriage/store/sqlite"
	"github.com/smallnest/mailtriage/triage"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "resume":
		err = cmdResume(os.Args[2:])
	case "inspect":
		err = cmdInspect(os.Args[2:])
	case "history":
		err = cmdHistory(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "kb":
		err = cmdKB(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mailtriage <command> [flags]

commands:
  run      triage an inbound email (reviews interactively if escalated)
  resume   resume a suspended session with a review decision
  inspect  show a session's status and pending review
  history  show a session's checkpoint log
  graph    print the workflow as a Mermaid diagram
  kb       manage the knowledge base (list, add, ingest)

run 'mailtriage <command> -h' for command flags`)
}

// commonFlags are shared across every session-touching command.
type commonFlags struct {
	storeKind string
	storePath string
	redisAddr string
	pgConn    string
	kbPath    string
	verbose   bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.storeKind, "store", "file", "checkpoint store: memory, file, sqlite, redis, postgres")
	fs.StringVar(&c.storePath, "store-path", ".mailtriage", "path for the file or sqlite store")
	fs.StringVar(&c.redisAddr, "redis-addr", "localhost:6379", "redis address for -store redis")
	fs.StringVar(&c.pgConn, "pg-conn", "", "postgres connection string for -store postgres")
	fs.StringVar(&c.kbPath, "kb", "knowledge_base.json", "knowledge base file")
	fs.BoolVar(&c.verbose, "v", false, "verbose logging")
}

func (c *commonFlags) setupLogging() {
	logger := log.NewGologLogger(golog.New())
	if c.verbose {
		logger.SetLevel(log.LogLevelDebug)
	} else {
		logger.SetLevel(log.LogLevelWarn)
	}
	log.SetDefaultLogger(logger)
}

func (c *commonFlags) openStore(ctx context.Context) (store.CheckpointStore, error) {
	switch c.storeKind {
	case "memory":
		return memory.NewMemoryCheckpointStore(), nil
	case "file":
		return filestore.NewFileCheckpointStore(c.storePath)
	case "sqlite":
		return sqlitestore.NewSqliteCheckpointStore(sqlitestore.SqliteOptions{Path: c.storePath + ".db"})
	case "redis":
		return redisstore.NewRedisCheckpointStore(redisstore.RedisOptions{Addr: c.redisAddr}), nil
	case "postgres":
		if c.pgConn == "" {
			return nil, fmt.Errorf("-store postgres requires -pg-conn")
		}
		return pgstore.NewPostgresCheckpointStore(ctx, pgstore.PostgresOptions{ConnString: c.pgConn})
	default:
		return nil, fmt.Errorf("unknown store %q", c.storeKind)
	}
}

// buildEngine wires the capabilities and compiles the workflow. Without an
// OPENAI_API_KEY the classifier and drafter fall back to canned responses so
// the workflow stays runnable offline.
func (c *commonFlags) buildEngine(ctx context.Context) (*session.Engine[triage.EmailState], error) {
	knowledge, err := kb.Open(c.kbPath)
	if err != nil {
		return nil, err
	}

	var classifier triage.Classifier
	var drafter triage.Drafter
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		model := llm.NewOpenAIModel(llm.OpenAIOptions{
			APIKey:  apiKey,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		})
		classifier, drafter = model, model
	} else {
		fmt.Fprintln(os.Stderr, warnStyle.Render("OPENAI_API_KEY not set, using canned responses"))
		classifier = &llm.MockClassifier{Result: triage.Classification{
			Intent:  triage.IntentQuestion,
			Urgency: triage.UrgencyLow,
			Topic:   "general",
		}}
		drafter = &llm.MockDrafter{Response: "Thank you for contacting support. We will look into this and get back to you shortly."}
	}

	nodes := &triage.Nodes{
		Classifier: classifier,
		Drafter:    drafter,
		Searcher:   knowledge,
		Sender:     consoleSender{},
	}

	checkpoints, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	return triage.NewEngine(nodes, checkpoints)
}

// consoleSender prints the outgoing reply instead of talking to a mail
// gateway.
type consoleSender struct{}

func (consoleSender) Send(ctx context.Context, recipient, body string) error {
	header := labelStyle.Render("To: ") + recipient
	fmt.Println(panelStyle.Render(header + "\n\n" + body))
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	email := fs.String("email", "", "email body (reads stdin if empty)")
	sender := fs.String("from", "customer@example.com", "sender address")
	emailID := fs.String("id", "", "email id (generated if empty)")
	tier := fs.String("tier", "", "customer tier for drafting context (e.g. premium)")
	noInput := fs.Bool("no-input", false, "do not prompt for review, leave the session suspended")
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.setupLogging()

	body := *email
	if body == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		body = string(data)
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("no email content given (use -email or pipe stdin)")
	}

	ctx := context.Background()
	engine, err := common.buildEngine(ctx)
	if err != nil {
		return err
	}

	sessionID := engine.NewSession()
	id := *emailID
	if id == "" {
		id = "email-" + sessionID[:8]
	}

	initial := triage.EmailState{
		EmailContent: body,
		SenderEmail:  *sender,
		EmailID:      id,
	}
	if *tier != "" {
		initial.CustomerHistory = map[string]any{"tier": *tier}
	}

	fmt.Println(titleStyle.Render("Triaging email " + id))
	snap, err := engine.Start(ctx, sessionID, initial)
	if err != nil {
		return err
	}

	if snap.Status == session.StatusSuspended && !*noInput {
		snap, err = reviewLoop(ctx, engine, snap)
		if err != nil {
			return err
		}
	}
	printSnapshot(snap)
	return nil
}

func cmdResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	sessionID := fs.String("session", "", "session id (required)")
	approve := fs.Bool("approve", false, "approve the draft as-is")
	reject := fs.Bool("reject", false, "reject the draft")
	edit := fs.String("edit", "", "approve with this edited response")
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.setupLogging()
	if *sessionID == "" {
		return fmt.Errorf("-session is required")
	}

	ctx := context.Background()
	engine, err := common.buildEngine(ctx)
	if err != nil {
		return err
	}

	// no decision flags means interactive review
	if !*approve && !*reject && *edit == "" {
		snap, err := engine.Inspect(ctx, *sessionID)
		if err != nil {
			return err
		}
		if snap.Status != session.StatusSuspended {
			return fmt.Errorf("session %s is %s, nothing to review", *sessionID, snap.Status)
		}
		final, err := reviewLoop(ctx, engine, snap)
		if err != nil {
			return err
		}
		printSnapshot(final)
		return nil
	}

	decision := triage.ReviewDecision{Approved: *approve || *edit != "", EditedResponse: *edit}
	if *reject {
		decision = triage.ReviewDecision{Approved: false}
	}
	snap, err := engine.Resume(ctx, *sessionID, decision)
	if err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}

func cmdInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	sessionID := fs.String("session", "", "session id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.setupLogging()
	if *sessionID == "" {
		return fmt.Errorf("-session is required")
	}

	ctx := context.Background()
	engine, err := common.buildEngine(ctx)
	if err != nil {
		return err
	}
	snap, err := engine.Inspect(ctx, *sessionID)
	if err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	sessionID := fs.String("session", "", "session id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.setupLogging()
	if *sessionID == "" {
		return fmt.Errorf("-session is required")
	}

	ctx := context.Background()
	engine, err := common.buildEngine(ctx)
	if err != nil {
		return err
	}
	checkpoints, err := engine.History(ctx, *sessionID)
	if err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		fmt.Println("no checkpoints")
		return nil
	}

	fmt.Println(titleStyle.Render("Execution log for session " + *sessionID))
	for _, cp := range checkpoints {
		marker := "·"
		switch {
		case cp.Terminal:
			marker = successStyle.Render("✓")
		case cp.Suspended:
			marker = warnStyle.Render("⏸")
		}
		fmt.Printf("  %s %3d  %-28s %s\n", marker, cp.Seq, cp.NodeName, cp.Timestamp.Format(time.RFC3339))
	}
	return nil
}

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	out := fs.String("o", "", "write the diagram to this .mmd file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	nodes := &triage.Nodes{
		Classifier: &llm.MockClassifier{},
		Drafter:    &llm.MockDrafter{},
		Searcher:   &llm.MockSearcher{},
		Sender:     &llm.MockSender{},
	}
	diagram := graph.NewExporter(triage.BuildGraph(nodes)).DrawMermaid()
	if *out != "" {
		if err := os.WriteFile(*out, []byte(diagram), 0o644); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("wrote " + *out))
		return nil
	}
	fmt.Println(diagram)
	return nil
}

func cmdKB(args []string) error {
	fs := flag.NewFlagSet("kb", flag.ExitOnError)
	kbPath := fs.String("kb", "knowledge_base.json", "knowledge base file")
	add := fs.Bool("add", false, "add a document")
	id := fs.String("id", "", "document id for -add or -ingest")
	category := fs.String("category", "General", "document category")
	content := fs.String("content", "", "document content for -add")
	ingest := fs.String("ingest", "", "ingest an .html or .md file as a document")
	if err := fs.Parse(args); err != nil {
		return err
	}

	knowledge, err := kb.Open(*kbPath)
	if err != nil {
		return err
	}

	switch {
	case *ingest != "":
		if *id == "" {
			return fmt.Errorf("-ingest requires -id")
		}
		switch {
		case strings.HasSuffix(*ingest, ".md") || strings.HasSuffix(*ingest, ".markdown"):
			data, err := os.ReadFile(*ingest)
			if err != nil {
				return err
			}
			if err := knowledge.IngestMarkdown(*id, *category, data); err != nil {
				return err
			}
		case strings.HasSuffix(*ingest, ".html") || strings.HasSuffix(*ingest, ".htm"):
			f, err := os.Open(*ingest)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := knowledge.IngestHTML(*id, *category, f); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported file type %q (want .html or .md)", *ingest)
		}
		fmt.Println(successStyle.Render("ingested " + *ingest + " as document " + *id))
		return nil

	case *add:
		if *id == "" || *content == "" {
			return fmt.Errorf("-add requires -id and -content")
		}
		if err := knowledge.AddDocument(kb.Document{ID: *id, Category: *category, Content: *content}); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("added document " + *id))
		return nil

	default:
		listing, err := knowledge.ListAll()
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Knowledge base"))
		fmt.Println(listing)
		return nil
	}
}

// reviewLoop renders the pending draft and prompts the operator until they
// approve, edit, or reject it.
func reviewLoop(ctx context.Context, engine *session.Engine[triage.EmailState], snap *session.Snapshot[triage.EmailState]) (*session.Snapshot[triage.EmailState], error) {
	payload, err := toReviewPayload(snap.Payload)
	if err != nil {
		return nil, fmt.Errorf("unexpected suspension payload: %w", err)
	}
	printReviewPanel(payload)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("[a]pprove / [e]dit / [r]eject > ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "a", "approve":
			return engine.Resume(ctx, snap.SessionID, triage.ReviewDecision{Approved: true})
		case "r", "reject":
			return engine.Resume(ctx, snap.SessionID, triage.ReviewDecision{Approved: false})
		case "e", "edit":
			fmt.Println("enter the edited response, end with a blank line:")
			var lines []string
			for {
				l, err := reader.ReadString('\n')
				if err != nil {
					return nil, err
				}
				l = strings.TrimRight(l, "\r\n")
				if l == "" {
					break
				}
				lines = append(lines, l)
			}
			edited := strings.Join(lines, "\n")
			if edited == "" {
				fmt.Println(warnStyle.Render("empty edit, try again"))
				continue
			}
			return engine.Resume(ctx, snap.SessionID, triage.ReviewDecision{Approved: true, EditedResponse: edited})
		default:
			fmt.Println(warnStyle.Render("please answer a, e, or r"))
		}
	}
}

// toReviewPayload normalizes the suspension payload, which is a typed struct
// in-process and a JSON map after a checkpoint round-trip.
func toReviewPayload(raw any) (triage.ReviewPayload, error) {
	switch v := raw.(type) {
	case triage.ReviewPayload:
		return v, nil
	case *triage.ReviewPayload:
		return *v, nil
	default:
		var payload triage.ReviewPayload
		data, err := json.Marshal(raw)
		if err != nil {
			return payload, err
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return payload, err
		}
		return payload, nil
	}
}

func printReviewPanel(p triage.ReviewPayload) {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Review required") + "\n\n")
	fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Email:"), p.EmailID)
	fmt.Fprintf(&sb, "%s %s / %s\n\n", labelStyle.Render("Classified:"), p.Intent, p.Urgency)
	fmt.Fprintf(&sb, "%s\n%s\n\n", labelStyle.Render("Original message:"), strings.TrimSpace(p.OriginalEmail))
	fmt.Fprintf(&sb, "%s\n%s", labelStyle.Render("Proposed reply:"), p.DraftResponse)
	fmt.Println(panelStyle.Render(sb.String()))
}

func printSnapshot[S any](snap *session.Snapshot[S]) {
	switch snap.Status {
	case session.StatusTerminated:
		fmt.Println(successStyle.Render(fmt.Sprintf("session %s terminated after %d steps", snap.SessionID, snap.Seq)))
	case session.StatusSuspended:
		fmt.Println(warnStyle.Render(fmt.Sprintf("session %s suspended at %s, resume with:", snap.SessionID, snap.Node)))
		fmt.Printf("  mailtriage resume -session %s [-approve | -reject | -edit \"...\"]\n", snap.SessionID)
	case session.StatusNotStarted:
		fmt.Println(warnStyle.Render(fmt.Sprintf("session %s has not started", snap.SessionID)))
	default:
		fmt.Printf("session %s is %s at node %s (step %d)\n", snap.SessionID, snap.Status, snap.Node, snap.Seq)
	}
}
