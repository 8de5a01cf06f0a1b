package rulescript

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"SigWatch/internal/domain/models"
	"SigWatch/pkg/logger"
)

func testEnv() map[string]interface{} {
	return map[string]interface{}{
		"entity_id": "ent-1",
		"price": map[string]interface{}{
			"close":    101.5,
			"prev":     100.0,
			"currency": "USD",
		},
		"volume": 2_000_000,
	}
}

func TestExecuteBasicTrigger(t *testing.T) {
	e := NewExecutor(logger.Nop())

	src := `
change = (price.close - price.prev) / price.prev * 100
log("change", change)
if change > 1 {
    triggered = true
    message = "price moved " + str(change) + " percent"
} else {
    triggered = false
    message = "within range"
}
`
	res, err := e.Execute(context.Background(), src, testEnv())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Triggered {
		t.Fatalf("expected triggered")
	}
	if !strings.Contains(res.Message, "percent") {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if !strings.Contains(res.CapturedLog, "change") {
		t.Fatalf("expected captured log, got %q", res.CapturedLog)
	}
}

func TestExecuteExplicitSignal(t *testing.T) {
	e := NewExecutor(logger.Nop())

	src := `
triggered = true
message = "drop"
signal = "STRONG_SELL"
`
	res, err := e.Execute(context.Background(), src, testEnv())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Signal == nil || *res.Signal != models.SignalStrongSell {
		t.Fatalf("expected explicit STRONG_SELL signal")
	}
	if res.AppliedSignal() != models.SignalStrongSell {
		t.Fatalf("applied signal should honor explicit signal")
	}
}

func TestExecuteTriggeredMapping(t *testing.T) {
	e := NewExecutor(logger.Nop())

	res, err := e.Execute(context.Background(), "triggered = true\nmessage = \"x\"", testEnv())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.AppliedSignal() != models.SignalBuy {
		t.Fatalf("triggered without explicit signal should map to BUY")
	}

	res, err = e.Execute(context.Background(), "triggered = false\nmessage = \"x\"", testEnv())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.AppliedSignal() != models.SignalWait {
		t.Fatalf("not triggered should map to WAIT")
	}
}

func TestExecuteContractViolations(t *testing.T) {
	e := NewExecutor(logger.Nop())

	cases := []struct {
		name string
		src  string
	}{
		{"missing message", `triggered = true`},
		{"missing triggered", `message = "x"`},
		{"triggered not bool", `triggered = 1
message = "x"`},
		{"bad signal value", `triggered = true
message = "x"
signal = "PANIC"`},
		{"parse error", `if { triggered = true }`},
		{"unknown function", `triggered = delete_everything()
message = "x"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), tc.src, testEnv())
			if !errors.Is(err, models.ErrScriptContractViolation) {
				t.Fatalf("expected contract violation, got %v", err)
			}
		})
	}
}

func TestExecuteOpBudget(t *testing.T) {
	e := NewExecutor(logger.Nop(), WithMaxOps(50))

	// enough statements to blow a 50 op budget
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("x = 1 + 1\n")
	}
	sb.WriteString("triggered = true\nmessage = \"x\"\n")

	_, err := e.Execute(context.Background(), sb.String(), testEnv())
	if !errors.Is(err, models.ErrScriptTimeout) {
		t.Fatalf("expected timeout from budget, got %v", err)
	}
}

func TestExecuteDeadline(t *testing.T) {
	e := NewExecutor(logger.Nop(), WithTimeout(time.Nanosecond), WithMaxOps(1_000_000))

	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		sb.WriteString("x = 1 + 1\n")
	}
	sb.WriteString("triggered = true\nmessage = \"x\"\n")

	_, err := e.Execute(context.Background(), sb.String(), testEnv())
	if !errors.Is(err, models.ErrScriptTimeout) {
		t.Fatalf("expected deadline timeout, got %v", err)
	}
}

func TestExecuteShortCircuit(t *testing.T) {
	e := NewExecutor(logger.Nop())

	// right side of && would fail if evaluated
	src := `
triggered = false && no_such_var > 0
message = "ok"
`
	res, err := e.Execute(context.Background(), src, testEnv())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Triggered {
		t.Fatalf("expected false")
	}
}

func TestExecuteCapabilities(t *testing.T) {
	e := NewExecutor(logger.Nop())

	src := `
a = abs(0 - 3)
b = min(a, 2, 10)
c = max(b, 7)
ok = contains(price.currency, "US")
triggered = a == 3 && b == 2 && c == 7 && ok
message = str(c)
`
	res, err := e.Execute(context.Background(), src, testEnv())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Triggered {
		t.Fatalf("capability results wrong")
	}
	if res.Message != "7" {
		t.Fatalf("str() formatting wrong: %q", res.Message)
	}
}

func TestExecuteCommentsAndElseIf(t *testing.T) {
	e := NewExecutor(logger.Nop())

	src := `
# classify the move
change = price.close - price.prev
if change > 10 {
    signal = "STRONG_BUY"
    triggered = true
} else if change > 1 {
    signal = "BUY"
    triggered = true
} else {
    triggered = false
}
message = "classified"
`
	res, err := e.Execute(context.Background(), src, testEnv())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Signal == nil || *res.Signal != models.SignalBuy {
		t.Fatalf("expected BUY branch")
	}
}
