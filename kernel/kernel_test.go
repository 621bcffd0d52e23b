package kernel

import (
	"strings"
	"testing"
	"time"

	"github.com/aharrow/miniker/console"
	"github.com/aharrow/miniker/fs"
	"github.com/aharrow/miniker/irq"
	"github.com/aharrow/miniker/process"
	"github.com/aharrow/miniker/rtc"
)

func testImage(t *testing.T) *fs.Image {
	t.Helper()
	files := map[string]FileSpec{
		"shell":        {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"hello":        {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"cat":          {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"counter":      {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"ls":           {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
		"rtc":          {Type: fs.TypeRTC},
		".":            {Type: fs.TypeDirectory},
		"greeting.txt": {Type: fs.TypeRegular, Content: []byte("hi there")},
	}
	img, err := fs.Load(BuildImage(files))
	if err != nil {
		t.Fatalf("fs.Load(BuildImage(...)) = %v, want nil", err)
	}
	return img
}

// shellCaller allocates and wires a PCB the way Boot wires a root shell,
// without starting a goroutine on it, so tests can call syscalls as if
// from inside that process.
func shellCaller(t *testing.T, k *Kernel, term int) *process.PCB {
	t.Helper()
	pcb, err := k.Table.Alloc()
	if err != nil {
		t.Fatalf("Table.Alloc() = %v, want nil", err)
	}
	pcb.Terminal = term
	if _, err := k.Paging.SetupNewTask(int(pcb.ID), videoFrameForTerminal(term)); err != nil {
		t.Fatalf("SetupNewTask() = %v, want nil", err)
	}
	return pcb
}

func TestExecuteRunsBuiltinAndReturnsStatus(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()
	caller := shellCaller(t, k, 0)

	status, err := k.Execute(caller, "hello")
	if err != nil {
		t.Fatalf("Execute(hello) = %v, want nil", err)
	}
	if status != 0 {
		t.Errorf("Execute(hello) status = %d, want 0", status)
	}
}

func TestExecuteUnknownProgramFails(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()
	caller := shellCaller(t, k, 0)

	status, err := k.Execute(caller, "nonesuch")
	if err == nil || status != -1 {
		t.Errorf("Execute(nonesuch) = %d, %v, want -1, non-nil error", status, err)
	}
}

func TestExecuteSetsParentFromCallerNotParameter(t *testing.T) {
	spyFiles := map[string]FileSpec{
		"spy": {Type: fs.TypeRegular, Content: ProgramImage(0x08048000, nil)},
	}
	spyImg, err := fs.Load(BuildImage(spyFiles))
	if err != nil {
		t.Fatalf("fs.Load = %v", err)
	}

	k := New(spyImg)
	k.Paging.Init()
	caller := shellCaller(t, k, 0)

	var childID, childParent process.ID
	done := make(chan struct{})
	k.programs["spy"] = func(kk *Kernel, pcb *process.PCB) {
		childID = pcb.ID
		childParent = pcb.ParentID
		close(done)
		kk.Halt(pcb, 0)
	}

	status, err := k.Execute(caller, "spy")
	if err != nil {
		t.Fatalf("Execute(spy) = %v, want nil", err)
	}
	if status != 0 {
		t.Errorf("status = %d, want 0", status)
	}
	<-done
	if childID == caller.ID {
		t.Fatalf("child id == caller id, Alloc should have returned a fresh PCB")
	}
	if caller.ID == 0 {
		t.Fatalf("caller.ID unexpectedly 0")
	}
	if childParent != caller.ID {
		t.Errorf("child ParentID = %d, want caller's id %d", childParent, caller.ID)
	}
}

func TestHaltFromRootShellReexecutesShell(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()
	pcb := shellCaller(t, k, 0)
	// pcb.ParentID is the zero value, making it a root shell.

	entered := make(chan struct{}, 2)
	k.programs["shell"] = func(kk *Kernel, p *process.PCB) {
		entered <- struct{}{}
		kk.Halt(p, 0)
	}

	go k.runProcess(pcb, k.programs["shell"])

	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatalf("shell was not re-entered after halt (iteration %d)", i)
		}
	}

	if k.Table.Get(pcb.ID) == nil {
		t.Errorf("root shell's PCB was freed; halt-from-root must not tear it down")
	}
}

func TestHaltFromChildFreesProcessAndClearsParentHasChild(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()
	caller := shellCaller(t, k, 0)

	status, err := k.Execute(caller, "hello")
	if err != nil || status != 0 {
		t.Fatalf("Execute(hello) = %d, %v, want 0, nil", status, err)
	}

	if caller.HasChild {
		t.Errorf("caller.HasChild still true after child halted")
	}
	if procs := k.Table.Snapshot(); len(procs) != 1 || procs[0] != caller {
		t.Errorf("live processes after child halted = %d, want only the caller", len(procs))
	}
}

func TestCounterProgramReturnsExpectedStatus(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()
	k.RTC = rtc.NewClock()
	if err := k.RTC.SetFrequency(1024); err != nil {
		t.Fatalf("SetFrequency() = %v, want nil", err)
	}
	caller := shellCaller(t, k, 0)

	k.RTC.Start()
	defer k.RTC.Shutdown()

	done := make(chan struct{})
	var status int
	var err error
	go func() {
		status, err = k.Execute(caller, "counter")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("counter program did not complete in time")
	}
	if err != nil || status != 42 {
		t.Errorf("Execute(counter) = %d, %v, want 42, nil", status, err)
	}
}

func TestCatProgramStreamsFileToStdout(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()
	caller := shellCaller(t, k, 0)

	status, err := k.Execute(caller, "cat greeting.txt")
	if err != nil || status != 0 {
		t.Fatalf("Execute(cat) = %d, %v, want 0, nil", status, err)
	}
}

func TestLsProgramListsDirectoryEntries(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()
	caller := shellCaller(t, k, 0)

	status, err := k.Execute(caller, "ls")
	if err != nil || status != 0 {
		t.Fatalf("Execute(ls) = %d, %v, want 0, nil", status, err)
	}
}

func TestGetArgsFailsWhenBufferTooSmall(t *testing.T) {
	k := New(testImage(t))
	caller := shellCaller(t, k, 0)
	caller.SetArgs("a long argument string")

	small := make([]byte, 4)
	if _, err := k.GetArgs(caller, small); err == nil {
		t.Errorf("GetArgs() with undersized buffer = nil, want error")
	}

	big := make([]byte, 64)
	n, err := k.GetArgs(caller, big)
	if err != nil {
		t.Fatalf("GetArgs() = %v, want nil", err)
	}
	if string(big[:n]) != "a long argument string" {
		t.Errorf("GetArgs() = %q, want original args", big[:n])
	}
}

func TestVidmapRejectsOutOfRangeAddress(t *testing.T) {
	k := New(testImage(t))
	caller := shellCaller(t, k, 1)

	if _, err := k.Vidmap(caller, 0); err == nil {
		t.Errorf("Vidmap(0) = nil, want error")
	}
	addr, err := k.Vidmap(caller, vidmapBase+4096)
	if err != nil {
		t.Fatalf("Vidmap(valid) = %v, want nil", err)
	}
	if addr != videoFrameForTerminal(1) {
		t.Errorf("Vidmap() = %#x, want terminal 1's video frame", addr)
	}
}

func TestOpenStdinStdoutInstallTerminalOps(t *testing.T) {
	k := New(testImage(t))
	caller := shellCaller(t, k, 2)

	fd, err := k.Open(caller, "stdin")
	if err != nil || fd != 0 {
		t.Fatalf("Open(stdin) = %d, %v, want 0, nil", fd, err)
	}
	fd, err = k.Open(caller, "stdout")
	if err != nil || fd != 1 {
		t.Fatalf("Open(stdout) = %d, %v, want 1, nil", fd, err)
	}

	if _, inUse := caller.FDAt(0); !inUse {
		t.Errorf("fd 0 not bound after Open(stdin)")
	}
	if _, inUse := caller.FDAt(1); !inUse {
		t.Errorf("fd 1 not bound after Open(stdout)")
	}
}

func TestSplitCommandParsesNameAndArgs(t *testing.T) {
	fname, args, err := splitCommand("cat greeting.txt")
	if err != nil || fname != "cat" || args != "greeting.txt" {
		t.Errorf("splitCommand() = %q, %q, %v, want cat, greeting.txt, nil", fname, args, err)
	}

	fname, args, err = splitCommand("hello")
	if err != nil || fname != "hello" || args != "" {
		t.Errorf("splitCommand(hello) = %q, %q, %v, want hello, \"\", nil", fname, args, err)
	}

	if _, _, err := splitCommand("   "); err != ErrBadCommand {
		t.Errorf("splitCommand(blank) = %v, want ErrBadCommand", err)
	}

	long := strings.Repeat("x", 40)
	fname, _, _ = splitCommand(long)
	if len(fname) != 32 {
		t.Errorf("splitCommand() fname length = %d, want 32 (truncated)", len(fname))
	}
}

func TestBootHonorsCustomProgramsAndRates(t *testing.T) {
	k := New(testImage(t))
	opts := BootOptions{PITHz: 50, RTCHz: 64, Programs: []string{"hello"}}
	if err := k.Boot(opts); err != nil {
		t.Fatalf("Boot(%+v) = %v, want nil", opts, err)
	}
	defer k.Shutdown()

	pcb := k.Table.Get(1)
	if pcb == nil {
		t.Fatalf("process 1 not live after Boot()")
	}
	// hello halts immediately, but as a root process it is restarted as
	// shell in the same PCB, so process 1 stays live. Process 2 must still
	// be bound to terminal 1 when Programs names only terminal 0.
	pcb2 := k.Table.Get(2)
	if pcb2 == nil || pcb2.Terminal != 1 {
		t.Fatalf("process 2 missing or wrong terminal after Boot() with partial Programs override")
	}
}

func TestIPLRejectsOutOfRangeTerminal(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()

	if err := k.IPL(-1, "shell"); err == nil {
		t.Errorf("IPL(-1) = nil, want error")
	}
	if err := k.IPL(console.NumTerminals, "shell"); err == nil {
		t.Errorf("IPL(out of range) = nil, want error")
	}
}

func TestIPLLaunchesProgramOnTerminal(t *testing.T) {
	k := New(testImage(t))
	k.Paging.Init()

	if err := k.IPL(0, "hello"); err != nil {
		t.Fatalf("IPL(0, hello) = %v, want nil", err)
	}

	found := false
	for _, pcb := range k.Table.Snapshot() {
		if pcb.Terminal == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("no process bound to terminal 0 after IPL")
	}
}

func TestBootStartsThreeShellsOnDistinctTerminals(t *testing.T) {
	k := New(testImage(t))
	if err := k.Boot(BootOptions{}); err != nil {
		t.Fatalf("Boot() = %v, want nil", err)
	}
	defer k.Shutdown()

	for id := process.ID(1); id <= 3; id++ {
		pcb := k.Table.Get(id)
		if pcb == nil {
			t.Fatalf("process %d not live after Boot()", id)
		}
		if pcb.Terminal != int(id)-1 {
			t.Errorf("process %d terminal = %d, want %d", id, pcb.Terminal, int(id)-1)
		}
		if pcb.ParentID != 0 {
			t.Errorf("process %d parent = %d, want 0", id, pcb.ParentID)
		}
	}
	if k.Sched.Current() != 1 {
		t.Errorf("Sched.Current() = %d, want 1", k.Sched.Current())
	}
}

func TestFeedKeySendsEOIWhenUnmasked(t *testing.T) {
	k := New(testImage(t))
	k.IRQ.EnableIRQ(irq.Keyboard)

	k.FeedKey(0x1e) // 'a' make code

	if got := k.IRQ.EOICount(irq.Keyboard); got != 1 {
		t.Errorf("EOICount(Keyboard) = %d, want 1", got)
	}
}

func TestFeedKeyDroppedWhenMasked(t *testing.T) {
	k := New(testImage(t))
	k.IRQ.DisableIRQ(irq.Keyboard)

	k.FeedKey(0x1e)

	if got := k.IRQ.EOICount(irq.Keyboard); got != 0 {
		t.Errorf("EOICount(Keyboard) = %d, want 0 while masked", got)
	}
}

func TestBootAcknowledgesPITAndRTCTicks(t *testing.T) {
	k := New(testImage(t))
	if err := k.Boot(BootOptions{PITHz: 200, RTCHz: 64}); err != nil {
		t.Fatalf("Boot() = %v, want nil", err)
	}
	defer k.Shutdown()

	deadline := time.After(time.Second)
	for k.IRQ.EOICount(irq.PIT) == 0 || k.IRQ.EOICount(irq.RTC) == 0 {
		select {
		case <-deadline:
			t.Fatalf("PIT EOIs = %d, RTC EOIs = %d after 1s, want both > 0",
				k.IRQ.EOICount(irq.PIT), k.IRQ.EOICount(irq.RTC))
		case <-time.After(10 * time.Millisecond):
		}
	}
}
