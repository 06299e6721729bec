package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	okBefore := testutil.ToFloat64(Operations.WithLabelValues("test.op", "ok"))
	errBefore := testutil.ToFloat64(Operations.WithLabelValues("test.op", "error"))

	var err error
	Observe("test.op", time.Now(), &err)
	err = errors.New("boom")
	Observe("test.op", time.Now(), &err)
	Observe("test.op", time.Now(), nil)

	if got := testutil.ToFloat64(Operations.WithLabelValues("test.op", "ok")) - okBefore; got != 2 {
		t.Errorf("ok delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(Operations.WithLabelValues("test.op", "error")) - errBefore; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}
