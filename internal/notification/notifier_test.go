package notification

import (
	"context"
	"testing"

	"livestratexec/internal/emitter"
	"livestratexec/internal/strategy"
)

type recordingNotifier struct {
	alerts []Alert
}

func (r *recordingNotifier) Send(ctx context.Context, alert Alert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func TestLogNotifierSendNeverErrors(t *testing.T) {
	n := NewLogNotifier()
	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestObserverBridgeOnErrorSendsCriticalAlert(t *testing.T) {
	rn := &recordingNotifier{}
	bridge := NewObserverBridge(context.Background(), rn)

	bridge.OnError(errTest("boom"))

	if len(rn.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(rn.alerts))
	}
	if rn.alerts[0].Level != AlertCritical {
		t.Errorf("expected critical alert, got %v", rn.alerts[0].Level)
	}
}

func TestObserverBridgeOnOpenedPositionSendsInfoAlert(t *testing.T) {
	rn := &recordingNotifier{}
	bridge := NewObserverBridge(context.Background(), rn)

	bridge.OnOpenedPosition(emitter.OpenedPosition{
		Symbol:   "tBTCUSD",
		Position: strategy.Position{Symbol: "tBTCUSD", Qty: 1, AvgPrice: 100},
	})

	if len(rn.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(rn.alerts))
	}
	if rn.alerts[0].Level != AlertInfo {
		t.Errorf("expected info alert, got %v", rn.alerts[0].Level)
	}
}

func TestObserverBridgeOnExecutionResultsIsSilent(t *testing.T) {
	rn := &recordingNotifier{}
	bridge := NewObserverBridge(context.Background(), rn)

	bridge.OnExecutionResults(emitter.Snapshot{Symbol: "tBTCUSD"})

	if len(rn.alerts) != 0 {
		t.Errorf("expected no alerts for routine execution results, got %d", len(rn.alerts))
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
