package consumer

import (
	"errors"
	"testing"
	"time"

	"kanal/api"
	"kanal/driver"
	"kanal/driver/drivertest"
)

func waitEvent(t *testing.T, ch <-chan api.Event) (api.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return api.Event{}, false
	}
}

// drain collects every remaining event until the output closes.
func drain(t *testing.T, ch <-chan api.Event) []api.Event {
	t.Helper()
	var out []api.Event
	for {
		ev, ok := waitEvent(t, ch)
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func contains(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.InputBuffer != 10 || o.OutputBuffer != 100 || o.PollTimeout != 100*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", o)
	}
}

func TestStopCommandEmitsExactlyOneEOF(t *testing.T) {
	d := drivertest.NewConsumer()
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !p.Send(Command{Op: OpStop}) {
		t.Fatal("Send stop failed")
	}
	evs := drain(t, p.Output())

	eofs := 0
	for _, ev := range evs {
		if ev.Type == api.EventEOF {
			eofs++
		}
	}
	if eofs != 1 {
		t.Fatalf("want exactly one eof, got %d in %v", eofs, evs)
	}
	if evs[len(evs)-1].Type != api.EventEOF {
		t.Fatalf("eof must be the last event, got %v", evs)
	}
	if !d.Closed() {
		t.Fatal("driver not closed after teardown")
	}
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done did not close")
	}
	if p.Send(Command{Op: OpStop}) {
		t.Fatal("Send succeeded after shutdown")
	}
}

func TestExternalCloseTriggersSameTeardown(t *testing.T) {
	d := drivertest.NewConsumer()
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	p.Close()
	p.Close() // idempotent

	evs := drain(t, p.Output())
	if len(evs) == 0 || evs[len(evs)-1].Type != api.EventEOF {
		t.Fatalf("want trailing eof, got %v", evs)
	}
	if !d.Closed() {
		t.Fatal("driver not closed after external close")
	}
}

func TestAutoSubscribeAtConstruction(t *testing.T) {
	d := drivertest.NewConsumer()
	p, err := Run(d, Options{Topic: "t1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer func() { p.Close(); drain(t, p.Output()) }()

	if !contains(d.Calls(), "subscribe t1") {
		t.Fatalf("auto-subscribe missing, calls: %v", d.Calls())
	}
}

func TestAutoSubscribeFaultFailsRun(t *testing.T) {
	d := drivertest.NewConsumer()
	d.FailOp("subscribe t1", errors.New("no such topic"))
	if _, err := Run(d, Options{Topic: "t1"}); err == nil {
		t.Fatal("want Run to fail when auto-subscribe fails")
	}
}

func TestRecordsFlowToOutput(t *testing.T) {
	d := drivertest.NewConsumer()
	d.AddRecords(
		driver.Record{Topic: "t1", Partition: 0, Offset: 7, Value: []byte("a")},
		driver.Record{Topic: "t1", Partition: 0, Offset: 8, Value: []byte("b")},
	)
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, want := range []int64{7, 8} {
		ev, _ := waitEvent(t, p.Output())
		if ev.Type != api.EventRecord || ev.Record.Offset != want {
			t.Fatalf("want record offset %d, got %+v", want, ev)
		}
	}
	p.Send(Command{Op: OpStop})
	drain(t, p.Output())
}

func TestPartitionsForRoutesToResponseOnly(t *testing.T) {
	d := drivertest.NewConsumer()
	d.SetPartitions("t1", []driver.PartitionInfo{{Topic: "t1", Partition: 0, Leader: 1}})
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	resp := make(chan api.Event, 1)
	p.Send(Command{Op: OpPartitionsFor, Topic: "t1", Response: resp})

	ev, _ := waitEvent(t, resp)
	if ev.Type != api.EventPartitions || len(ev.Partitions) != 1 {
		t.Fatalf("want partitions on response channel, got %+v", ev)
	}

	p.Send(Command{Op: OpStop})
	for _, ev := range drain(t, p.Output()) {
		if ev.Type == api.EventPartitions {
			t.Fatal("partitions event leaked to default output despite response channel")
		}
	}
}

func TestPartitionsForDefaultsToOutput(t *testing.T) {
	d := drivertest.NewConsumer()
	d.SetPartitions("t1", []driver.PartitionInfo{{Topic: "t1", Partition: 0}})
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	p.Send(Command{Op: OpPartitionsFor, Topic: "t1"})
	ev, _ := waitEvent(t, p.Output())
	if ev.Type != api.EventPartitions {
		t.Fatalf("want partitions on default output, got %+v", ev)
	}
	p.Send(Command{Op: OpStop})
	drain(t, p.Output())
}

func TestPartitionsForFaultReachesResponse(t *testing.T) {
	d := drivertest.NewConsumer()
	d.FailOp("partitions-for t1", errors.New("metadata down"))
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	resp := make(chan api.Event, 1)
	p.Send(Command{Op: OpPartitionsFor, Topic: "t1", Response: resp})
	ev, _ := waitEvent(t, resp)
	if ev.Type != api.EventException {
		t.Fatalf("want exception on response channel, got %+v", ev)
	}
	p.Send(Command{Op: OpStop})
	drain(t, p.Output())
}

func TestOneWakeupPerCommand(t *testing.T) {
	d := drivertest.NewConsumer()
	// A poll that effectively never times out: only wakeups interrupt it.
	p, err := Run(d, Options{PollTimeout: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := 0; i < 3; i++ {
		p.Send(Command{Op: OpPause})
	}
	eventually(t, "three pause dispatches", func() bool {
		n := 0
		for _, c := range d.Calls() {
			if c == "pause" {
				n++
			}
		}
		return n == 3
	})
	if got := d.Wakeups(); got != 3 {
		t.Fatalf("want exactly 3 wakeups for 3 commands, got %d", got)
	}

	p.Send(Command{Op: OpStop})
	drain(t, p.Output())
}

func TestSpuriousWakeupEmitsWokenUp(t *testing.T) {
	d := drivertest.NewConsumer()
	p, err := Run(d, Options{PollTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	d.Wakeup() // not driven by any command
	ev, _ := waitEvent(t, p.Output())
	if ev.Type != api.EventWokenUp {
		t.Fatalf("want woken-up marker, got %+v", ev)
	}
	p.Send(Command{Op: OpStop})
	drain(t, p.Output())
}

func TestCommandsDispatchInOrder(t *testing.T) {
	d := drivertest.NewConsumer()
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	p.Send(Command{Op: OpCommit})
	p.Send(Command{Op: OpCommit, TopicOffsets: []driver.TopicOffset{{Topic: "t1", Offset: 5}}})
	p.Send(Command{Op: OpPause})
	p.Send(Command{Op: OpStop})
	drain(t, p.Output())

	want := []string{"commit", "commit explicit", "pause"}
	got := d.Calls()
	if len(got) != len(want) {
		t.Fatalf("want calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: want %q, got %q", i, want[i], got[i])
		}
	}
}

func TestAdminFaultEmitsExceptionAndContinues(t *testing.T) {
	d := drivertest.NewConsumer()
	d.FailOp("pause", errors.New("not assigned"))
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	p.Send(Command{Op: OpPause})
	ev, _ := waitEvent(t, p.Output())
	if ev.Type != api.EventException {
		t.Fatalf("want exception event, got %+v", ev)
	}

	// The loop must still be alive and dispatching.
	p.Send(Command{Op: OpResume})
	eventually(t, "resume dispatch", func() bool { return contains(d.Calls(), "resume") })

	p.Send(Command{Op: OpStop})
	drain(t, p.Output())
}

func TestFatalPollFaultTearsDown(t *testing.T) {
	d := drivertest.NewConsumer()
	boom := errors.New("broker gone")
	d.FailPoll(boom)
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ev, _ := waitEvent(t, p.Output())
	if ev.Type != api.EventException || !errors.Is(ev.Err, boom) {
		t.Fatalf("want exception carrying the poll fault, got %+v", ev)
	}
	ev, _ = waitEvent(t, p.Output())
	if ev.Type != api.EventEOF {
		t.Fatalf("want eof after fatal fault, got %+v", ev)
	}
	if _, ok := waitEvent(t, p.Output()); ok {
		t.Fatal("output still open after eof")
	}
	if !d.Closed() {
		t.Fatal("driver not closed after fatal fault")
	}
}

func TestCallbackDecidesStop(t *testing.T) {
	d := drivertest.NewConsumer()
	p, err := Run(d, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	marker := errors.New("from callback")
	p.Send(Command{Op: OpCallback, Callback: func(_ driver.Consumer, out chan<- api.Event) Decision {
		out <- api.Exception(marker)
		return Stop
	}})

	ev, _ := waitEvent(t, p.Output())
	if ev.Type != api.EventException || !errors.Is(ev.Err, marker) {
		t.Fatalf("want callback's event first, got %+v", ev)
	}
	evs := drain(t, p.Output())
	if len(evs) != 1 || evs[0].Type != api.EventEOF {
		t.Fatalf("want a lone eof after stopping callback, got %v", evs)
	}
}

func TestRebalanceForwardedToOutput(t *testing.T) {
	d := drivertest.NewConsumer()
	p, err := Run(d, Options{Topic: "t1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	d.QueueRebalance(driver.RebalanceEvent{
		Op:         driver.PartitionsAssigned,
		Partitions: []driver.TopicPartition{{Topic: "t1", Partition: 0}},
	})

	ev, _ := waitEvent(t, p.Output())
	if ev.Type != api.EventRebalance || ev.Rebalance.Op != driver.PartitionsAssigned {
		t.Fatalf("want rebalance event, got %+v", ev)
	}
	p.Send(Command{Op: OpStop})
	drain(t, p.Output())
}

func TestRunDuplexSurface(t *testing.T) {
	d := drivertest.NewConsumer()
	dx, err := RunDuplex(d, Options{})
	if err != nil {
		t.Fatalf("RunDuplex: %v", err)
	}

	if !dx.Send(Command{Op: OpStop}) {
		t.Fatal("duplex Send failed")
	}
	sawEOF := false
	for {
		ev, ok := dx.Recv()
		if !ok {
			break
		}
		if ev.Type == api.EventEOF {
			sawEOF = true
		}
	}
	if !sawEOF {
		t.Fatal("duplex never delivered eof")
	}
	dx.Close()
	dx.Close()
	if !dx.Closed() {
		t.Fatal("duplex not closed after Close and source end")
	}
}

// Scenario from the consumer surface's contract: auto-subscribe, a routed
// partition lookup, then stop.
func TestScenarioSubscribeLookupStop(t *testing.T) {
	d := drivertest.NewConsumer()
	d.SetPartitions("t1", []driver.PartitionInfo{{Topic: "t1", Partition: 0, Leader: 2}})
	p, err := Run(d, Options{Topic: "t1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(d.Calls(), "subscribe t1") {
		t.Fatalf("auto-subscribe missing, calls: %v", d.Calls())
	}

	resp := make(chan api.Event, 1)
	p.Send(Command{Op: OpPartitionsFor, Topic: "t1", Response: resp})
	ev, _ := waitEvent(t, resp)
	if ev.Type != api.EventPartitions {
		t.Fatalf("want partitions on response, got %+v", ev)
	}

	p.Send(Command{Op: OpStop})
	evs := drain(t, p.Output())
	for _, ev := range evs[:len(evs)-1] {
		if ev.Type != api.EventRecord {
			t.Fatalf("want only records before eof, got %+v", ev)
		}
	}
	if evs[len(evs)-1].Type != api.EventEOF {
		t.Fatalf("want trailing eof, got %v", evs)
	}
}
