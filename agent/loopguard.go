package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// LoopGuardConfig sets how much repetition the loop guard tolerates on one
// task. Zero values take the defaults.
type LoopGuardConfig struct {
	MaxRepeats      int // identical calls in a row (default 3)
	MaxErrors       int // identical calls failing the same way (default 2)
	MaxAlternations int // A/B call pairs in a row (default 3)
}

func (c LoopGuardConfig) withDefaults() LoopGuardConfig {
	if c.MaxRepeats <= 0 {
		c.MaxRepeats = 3
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 2
	}
	if c.MaxAlternations <= 0 {
		c.MaxAlternations = 3
	}
	return c
}

type toolCall struct {
	sig    string // tool name plus argument hash
	tool   string
	result string // result hash
	failed bool
}

// loopGuard watches the tool calls an agent makes on its current task and
// reports when the agent keeps doing the same thing. It is owned by a single
// Runtime and is not safe for concurrent use.
type loopGuard struct {
	cfg     LoopGuardConfig
	taskID  string
	history []toolCall
}

func newLoopGuard(cfg LoopGuardConfig) *loopGuard {
	return &loopGuard{cfg: cfg.withDefaults()}
}

// record adds a call made on taskID. Switching task starts a fresh history.
func (g *loopGuard) record(taskID, tool string, args map[string]any, result string, failed bool) {
	if taskID != g.taskID {
		g.taskID = taskID
		g.history = g.history[:0]
	}
	g.history = append(g.history, toolCall{
		sig:    tool + ":" + hashArgs(args),
		tool:   tool,
		result: hashText(result),
		failed: failed,
	})
}

// check returns a description of the loop the history shows, if any.
func (g *loopGuard) check() (string, bool) {
	n := len(g.history)
	if n == 0 {
		return "", false
	}
	last := g.history[n-1]

	if last.failed {
		same := 0
		for _, c := range g.history {
			if c.sig == last.sig && c.failed && c.result == last.result {
				same++
			}
		}
		if same >= g.cfg.MaxErrors {
			return fmt.Sprintf("%s failed the same way %d times", last.tool, same), true
		}
	}

	repeats := 1
	for i := n - 2; i >= 0 && g.history[i].sig == last.sig; i-- {
		repeats++
	}
	if repeats >= g.cfg.MaxRepeats {
		return fmt.Sprintf("%s called with the same arguments %d times in a row", last.tool, repeats), true
	}

	if n >= 4 && g.history[n-2].sig != last.sig {
		prev := g.history[n-2]
		pairs := 0
		for i := n - 1; i >= 1; i -= 2 {
			if g.history[i].sig != last.sig || g.history[i-1].sig != prev.sig {
				break
			}
			pairs++
		}
		if pairs >= g.cfg.MaxAlternations {
			return fmt.Sprintf("alternating between %s and %s %d times", prev.tool, last.tool, pairs), true
		}
	}
	return "", false
}

func (g *loopGuard) reset() {
	g.history = g.history[:0]
}

func hashArgs(args map[string]any) string {
	b, _ := json.Marshal(args)
	return hashText(string(b))
}

func hashText(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}
