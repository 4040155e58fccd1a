// Command wa wires the core pipeline together and runs capture →
// detection → dispatch cycles against a pane. Pane output is read from
// stdin (one capture segment per line), which makes the binary useful
// both for piping real agent logs through the pipeline and for demoing
// the policy gates without a terminal multiplexer attached.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wa-observability/wa/pkg/approval"
	"github.com/wa-observability/wa/pkg/dispatch"
	"github.com/wa-observability/wa/pkg/detectctx"
	"github.com/wa-observability/wa/pkg/engine"
	"github.com/wa-observability/wa/pkg/inject"
	"github.com/wa-observability/wa/pkg/logging"
	"github.com/wa-observability/wa/pkg/panecaps"
	"github.com/wa-observability/wa/pkg/paneio"
	"github.com/wa-observability/wa/pkg/patterns"
	"github.com/wa-observability/wa/pkg/policy"
	"github.com/wa-observability/wa/pkg/redact"
	"github.com/wa-observability/wa/pkg/reservation"
	"github.com/wa-observability/wa/pkg/storage"
	"github.com/wa-observability/wa/pkg/workflow"
	"github.com/wa-observability/wa/pkg/workspace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "wa:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath    = flag.String("db", defaultDBPath(), "sqlite database path")
		logDir    = flag.String("log-dir", defaultLogDir(), "structured log directory")
		paneID    = flag.String("pane", "stdin", "pane id to attribute captures to")
		agentType = flag.String("agent", "", "agent type gate for the pane (codex|claude_code|gemini|unknown)")
		dryRun    = flag.Bool("dry-run", false, "authorize and audit but perform no pane writes")
	)
	flag.Parse()

	store, err := storage.New(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	workspaceID := workspace.DefaultWorkspaceID()
	logger, err := logging.NewLogger(*logDir, workspaceID)
	if err != nil {
		return err
	}
	defer logger.Close()

	eng, err := engine.New()
	if err != nil {
		return err
	}

	panes := paneio.NewMemoryAdapter()
	panes.AddPane(paneio.PaneInfo{PaneID: *paneID, Title: *agentType})

	injector := &inject.Injector{
		Policy: policy.NewEngine(policy.DefaultConfig()),
		Panes:  panes,
		Audit:  store,
		Approvals: &approval.Store{
			Storage:     store,
			WorkspaceID: workspaceID,
		},
		Reservations: &reservation.Manager{Storage: store},
		Log:          logger,
		DryRun:       *dryRun,
	}

	workflows := workflow.NewEngine()
	if err := workflow.RegisterBuiltins(workflows); err != nil {
		return err
	}

	dispatcher := &dispatch.Dispatcher{
		Workflows: workflows,
		Runner:    &workflow.Runner{Locks: reservation.NewLockManager(), Injector: injector, Log: logger},
		Log:       logger,
	}

	detCtx := detectctx.New(*paneID, patterns.AgentType(*agentType))
	ctx := context.Background()
	out := json.NewEncoder(os.Stdout)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		segment := scanner.Text() + "\n"
		panes.AppendOutput(*paneID, segment)
		_ = store.RecordSegment(storage.Segment{
			PaneID:     *paneID,
			Content:    segment,
			CapturedAt: time.Now().UTC(),
		})

		detections := eng.DetectWithContext(segment, detCtx)
		for _, d := range detections {
			recordDetection(store, logger, *paneID, d)
		}
		if len(detections) == 0 {
			continue
		}

		req := inject.Request{
			PaneID: *paneID,
			Actor:  policy.ActorRobot,
			Capabilities: panecaps.Capabilities{
				PromptActive: panecaps.Bool(true),
				AltScreen:    panecaps.Bool(false),
			},
		}
		for _, outcome := range dispatcher.DispatchBatch(ctx, req, detections) {
			if err := out.Encode(map[string]any{
				"rule_id":  outcome.Detection.RuleID,
				"workflow": outcome.Workflow,
				"status":   string(outcome.Result.Status),
				"reason":   outcome.Result.Reason,
				"result":   outcome.Result.Result,
			}); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func recordDetection(store *storage.Store, logger *logging.Logger, paneID string, d engine.Detection) {
	redacted := make(map[string]string, len(d.Extracted))
	for k, v := range d.Extracted {
		redacted[k] = redact.Redact(v)
	}
	extracted, _ := json.Marshal(redacted)
	event := storage.StoredEvent{
		ID:            workspace.NewExecutionID("evt"),
		PaneID:        paneID,
		RuleID:        d.RuleID,
		AgentType:     string(d.AgentType),
		EventType:     d.EventType,
		Severity:      string(d.Severity),
		Confidence:    d.Confidence,
		MatchedText:   redact.Redact(d.MatchedText),
		ExtractedJSON: string(extracted),
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.RecordEvent(event); err != nil {
		_ = logger.Warn(logging.CategoryStorage, "event_write_failed", err.Error(), nil)
	}
	_ = logger.Log(logging.Event{
		Level:     logging.LevelInfo,
		Category:  logging.CategoryDetection,
		EventType: "rule_matched",
		PaneID:    paneID,
		RuleID:    d.RuleID,
		Details:   map[string]any{"event_type": d.EventType, "severity": string(d.Severity)},
	})
}

func defaultDBPath() string {
	if v := os.Getenv("WA_DB"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "wa.db"
	}
	return filepath.Join(home, ".local", "share", "wa", "wa.db")
}

func defaultLogDir() string {
	if v := os.Getenv("WA_LOG_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "wa-logs"
	}
	return filepath.Join(home, ".local", "share", "wa", "logs")
}
