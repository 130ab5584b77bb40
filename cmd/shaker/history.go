package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shaker/internal/storage"
)

var (
	historyLimit  int
	historyModule string
	historyPrune  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history [PASS_ID]",
	Short: "Show recorded optimizer runs",
	Long: `List runs recorded in .shaker/shaker.db, show the full report of one run,
or trace how a single module was pruned across runs.

A PASS_ID may be abbreviated to any unique prefix.

Examples:
  shaker history
  shaker history 3f2a91c0 --format yaml
  shaker history --module /app/math.js
  shaker history --prune 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list (0 for all)")
	historyCmd.Flags().StringVar(&historyModule, "module", "", "Show the recorded states of one module")
	historyCmd.Flags().IntVar(&historyPrune, "prune", -1, "Keep only the newest N runs")
	historyCmd.Flags().StringVar(&historyFormat, "format", "human", "Output format (human, json; toml and yaml for a single run)")
	rootCmd.AddCommand(historyCmd)
}

// RunCLI is one recorded run.
type RunCLI struct {
	PassID       string    `json:"passId"`
	CreatedAt    time.Time `json:"createdAt"`
	Input        string    `json:"input"`
	Entries      []string  `json:"entries"`
	ModulesIn    int       `json:"modulesIn"`
	ModulesOut   int       `json:"modulesOut"`
	PartsKept    int       `json:"partsKept"`
	PartsDropped int       `json:"partsDropped"`
	EdgesDropped int       `json:"edgesDropped"`
	SourceBytes  int       `json:"sourceBytes"`
	DurationMs   int64     `json:"durationMs"`
}

// HistoryResponseCLI lists recorded runs.
type HistoryResponseCLI struct {
	Runs   []RunCLI `json:"runs"`
	Pruned int64    `json:"pruned,omitempty"`
}

// RunModuleCLI is one recorded state of a module.
type RunModuleCLI struct {
	PassID       string   `json:"passId"`
	Full         bool     `json:"full"`
	DeferredOnly bool     `json:"deferredOnly,omitempty"`
	LiveBindings []string `json:"liveBindings"`
	Bytes        int      `json:"bytes"`
	Hash         string   `json:"hash,omitempty"`
}

// ModuleHistoryResponseCLI traces one module across runs.
type ModuleHistoryResponseCLI struct {
	Module string         `json:"module"`
	Runs   []RunModuleCLI `json:"runs"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := storage.Open(rootDir, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	runs := storage.NewRunRepository(db)

	var resp interface{}
	switch {
	case len(args) == 1:
		passID, err := resolvePassID(runs, args[0])
		if err != nil {
			return err
		}
		rep, err := runs.Report(passID)
		if err != nil {
			return err
		}
		resp = rep

	case historyModule != "":
		states, err := runs.ModuleHistory(historyModule)
		if err != nil {
			return err
		}
		mh := &ModuleHistoryResponseCLI{Module: historyModule, Runs: []RunModuleCLI{}}
		for _, m := range states {
			mh.Runs = append(mh.Runs, RunModuleCLI{
				PassID:       m.PassID,
				Full:         m.Full,
				DeferredOnly: m.DeferredOnly,
				LiveBindings: m.LiveBindings,
				Bytes:        m.Bytes,
				Hash:         m.Hash,
			})
		}
		resp = mh

	default:
		h := &HistoryResponseCLI{Runs: []RunCLI{}}
		if historyPrune >= 0 {
			h.Pruned, err = runs.Prune(historyPrune)
			if err != nil {
				return err
			}
			logger.Info("Run history pruned", "removed", h.Pruned, "kept", historyPrune)
		}
		list, err := runs.List(historyLimit)
		if err != nil {
			return err
		}
		for _, r := range list {
			h.Runs = append(h.Runs, RunCLI{
				PassID:       r.PassID,
				CreatedAt:    r.CreatedAt,
				Input:        r.Input,
				Entries:      r.Entries,
				ModulesIn:    r.ModulesIn,
				ModulesOut:   r.ModulesOut,
				PartsKept:    r.PartsKept,
				PartsDropped: r.PartsDropped,
				EdgesDropped: r.EdgesDropped,
				SourceBytes:  r.SourceBytes,
				DurationMs:   r.DurationMs,
			})
		}
		resp = h
	}

	output, err := FormatResponse(resp, OutputFormat(historyFormat))
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}

// resolvePassID expands a unique prefix to a full pass id.
func resolvePassID(runs *storage.RunRepository, prefix string) (string, error) {
	run, err := runs.Get(prefix)
	if err != nil {
		return "", err
	}
	if run != nil {
		return run.PassID, nil
	}

	all, err := runs.List(0)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, r := range all {
		if strings.HasPrefix(r.PassID, prefix) {
			matches = append(matches, r.PassID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no recorded run matches %q", prefix)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("pass id %q is ambiguous (%d runs match)", prefix, len(matches))
}
