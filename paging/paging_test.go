package paging

import "testing"

func TestInitInstallsKernelPage(t *testing.T) {
	p := NewPool()
	p.Init()

	entry, _ := p.Kernel().Entry(kernelPageVirt)
	if !entry.Present || !entry.Global {
		t.Errorf("kernel page entry = %+v, want present+global", entry)
	}
	if entry.Frame != pageSize4M {
		t.Errorf("kernel page frame = %#x, want %#x", entry.Frame, uintptr(pageSize4M))
	}

	_, videoTable := p.Kernel().Entry(videoTableEntry)
	if videoTable == nil {
		t.Errorf("expected kernel directory to have a video page table installed")
	}
}

func TestSetupNewTaskLayout(t *testing.T) {
	p := NewPool()
	p.Init()

	const videoFrame = 0xB8000
	dir, err := p.SetupNewTask(2, videoFrame)
	if err != nil {
		t.Fatalf("SetupNewTask(2) = %v, want nil", err)
	}

	kernelEntry, _ := dir.Entry(kernelPageVirt)
	if !kernelEntry.Present || !kernelEntry.Global || kernelEntry.Frame != pageSize4M {
		t.Errorf("kernel page entry = %+v, want present+global at 4MiB", kernelEntry)
	}

	videoEntry, videoTable := dir.Entry(videoTableEntry)
	if !videoEntry.Present || !videoEntry.User {
		t.Errorf("video table entry = %+v, want present+user", videoEntry)
	}
	if videoTable == nil {
		t.Fatalf("expected a video page table")
	}
	pte := videoTable.Entries[videoFrame/pageSize4K]
	if !pte.Present || !pte.User || pte.Frame != videoFrame {
		t.Errorf("video page table entry = %+v, want present+user+frame %#x", pte, uintptr(videoFrame))
	}

	progEntry, _ := dir.Entry(ProgramImageEntry)
	want := ProgramFrame(2)
	if !progEntry.Present || !progEntry.User || progEntry.Frame != want {
		t.Errorf("program image entry = %+v, want present+user+frame %#x", progEntry, want)
	}
}

func TestSetupNewTaskRejectsOutOfRangePID(t *testing.T) {
	p := NewPool()
	p.Init()

	if _, err := p.SetupNewTask(MaxProcesses, 0xB8000); err != nil {
		t.Errorf("SetupNewTask(MaxProcesses) = %v, want nil", err)
	}
	if _, err := p.SetupNewTask(MaxProcesses+1, 0xB8000); err != ErrBadPID {
		t.Errorf("SetupNewTask(MaxProcesses+1) = %v, want ErrBadPID", err)
	}
	if _, err := p.SetupNewTask(-1, 0xB8000); err != ErrBadPID {
		t.Errorf("SetupNewTask(-1) = %v, want ErrBadPID", err)
	}
}

func TestEachDirectoryHasDistinctCR3(t *testing.T) {
	p := NewPool()
	p.Init()

	seen := map[uintptr]bool{p.Kernel().CR3(): true}
	for pid := 0; pid <= MaxProcesses; pid++ {
		dir, err := p.SetupNewTask(pid, 0xB8000)
		if err != nil {
			t.Fatalf("SetupNewTask(%d) = %v, want nil", pid, err)
		}
		cr3 := dir.CR3()
		if seen[cr3] {
			t.Errorf("CR3 for pid %d collides with a previously seen directory", pid)
		}
		seen[cr3] = true
	}
}

func TestDirectoryLookupRejectsOutOfRangePID(t *testing.T) {
	p := NewPool()

	if _, err := p.Directory(MaxProcesses + 1); err != ErrBadPID {
		t.Errorf("Directory(MaxProcesses+1) = %v, want ErrBadPID", err)
	}
	if _, err := p.Directory(0); err != nil {
		t.Errorf("Directory(0) = %v, want nil", err)
	}
}
